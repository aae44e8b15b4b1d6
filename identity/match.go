package identity

import (
	"math"
	"sort"
	"strings"

	"github.com/mmcloughlin/geohash"

	"habitat_scrooper/models"
)

const (
	cellPrecision = 7  // ~150m cells
	minConfidence = 70 // hundredths

	// An address shared by more listings than this names an area, not a
	// unit, and is ignored as a match signal.
	maxAddressBucket = 8
)

// FindPossibleDuplicates pairs listings from different sources that likely
// describe the same unit. Candidates share a geohash cell (or a neighboring
// one) or a normalized address. Pairs are reported, never merged.
func FindPossibleDuplicates(props []models.ScoredProperty) []models.PossibleDuplicate {
	cells := make(map[string][]int)
	addresses := make(map[string][]int)
	for i := range props {
		loc := props[i].Location
		if cell := cellOf(loc); cell != "" {
			cells[cell] = append(cells[cell], i)
		}
		if addr := unitAddress(loc.Address); addr != "" {
			addresses[addr] = append(addresses[addr], i)
		}
	}
	for addr, bucket := range addresses {
		if len(bucket) > maxAddressBucket {
			delete(addresses, addr)
		}
	}

	seen := make(map[[2]int]bool)
	var out []models.PossibleDuplicate

	consider := func(i, j int) {
		if i == j {
			return
		}
		if i > j {
			i, j = j, i
		}
		a, b := &props[i].CanonicalProperty, &props[j].CanonicalProperty
		if a.Source == b.Source {
			return
		}
		pair := [2]int{i, j}
		if seen[pair] {
			return
		}
		seen[pair] = true

		if confidence, reasons, ok := scorePotentialMatch(a, b, addresses); ok {
			out = append(out, models.PossibleDuplicate{
				LeftID:     a.ID,
				RightID:    b.ID,
				Confidence: confidence,
				Reasons:    reasons,
			})
		}
	}

	for i := range props {
		cell := cellOf(props[i].Location)
		if cell != "" {
			for _, neighbor := range append(geohash.Neighbors(cell), cell) {
				for _, j := range cells[neighbor] {
					consider(i, j)
				}
			}
		}
		if addr := unitAddress(props[i].Location.Address); addr != "" {
			for _, j := range addresses[addr] {
				consider(i, j)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].LeftID != out[j].LeftID {
			return out[i].LeftID < out[j].LeftID
		}
		return out[i].RightID < out[j].RightID
	})
	return out
}

func cellOf(loc models.Location) string {
	if loc.Geohash != "" {
		if len(loc.Geohash) > cellPrecision {
			return loc.Geohash[:cellPrecision]
		}
		return loc.Geohash
	}
	if loc.Coordinates != nil {
		return geohash.EncodeWithPrecision(loc.Coordinates.Lat, loc.Coordinates.Lng, cellPrecision)
	}
	return ""
}

// unitAddress normalizes an address that can point at a single building:
// it must carry a number. Bare neighborhood or city names yield "".
func unitAddress(address string) string {
	addr := NormalizeAddress(address)
	if !strings.ContainsAny(addr, "0123456789") {
		return ""
	}
	return addr
}

// scorePotentialMatch needs a location signal plus close attributes.
// addresses holds the usable address buckets.
func scorePotentialMatch(a, b *models.CanonicalProperty, addresses map[string][]int) (float64, []string, bool) {
	reasons := []string{}

	sameAddress := false
	addrA, addrB := unitAddress(a.Location.Address), unitAddress(b.Location.Address)
	if _, usable := addresses[addrA]; usable && addrA != "" && addrA == addrB {
		reasons = append(reasons, "same_address")
		sameAddress = true
	}

	sameCell := false
	if cellA, cellB := cellOf(a.Location), cellOf(b.Location); cellA != "" && cellB != "" {
		if cellA == cellB {
			reasons = append(reasons, "same_cell")
			sameCell = true
		} else if isNeighbor(cellA, cellB) {
			reasons = append(reasons, "adjacent_cell")
			sameCell = true
		}
	}

	if !sameAddress && !sameCell {
		return 0, nil, false
	}

	sameType := a.PropertyType != "" && strings.EqualFold(a.PropertyType, b.PropertyType)
	if sameType {
		reasons = append(reasons, "same_property_type")
	}

	closeAttrCount := 0
	if a.Rooms > 0 && b.Rooms > 0 && a.Rooms == b.Rooms {
		reasons = append(reasons, "same_rooms")
		closeAttrCount++
	}
	if a.Bathrooms > 0 && b.Bathrooms > 0 && a.Bathrooms == b.Bathrooms {
		reasons = append(reasons, "same_bathrooms")
		closeAttrCount++
	}
	if within(a.Area, b.Area, 0.05) {
		reasons = append(reasons, "close_area")
		closeAttrCount++
	}
	if within(a.Price, b.Price, 0.05) {
		reasons = append(reasons, "close_price")
		closeAttrCount++
	}

	if closeAttrCount < 2 {
		return 0, nil, false
	}

	// hundredths, to keep the threshold comparison exact
	confidence := 50
	if sameAddress {
		confidence = 65
	}
	if sameCell {
		confidence += 5
	}
	confidence += 6 * closeAttrCount
	if sameType {
		confidence += 3
	}
	if confidence > 95 {
		confidence = 95
	}
	if confidence < minConfidence {
		return 0, nil, false
	}

	return float64(confidence) / 100, reasons, true
}

func isNeighbor(a, b string) bool {
	for _, n := range geohash.Neighbors(a) {
		if n == b {
			return true
		}
	}
	return false
}

// within reports whether a and b differ by at most frac of the larger one.
func within(a, b, frac float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	return math.Abs(a-b) <= frac*math.Max(a, b)
}
