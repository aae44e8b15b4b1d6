// Package criteria decides whether a property meets a search's hard
// requirements and scores it against the soft preferences.
package criteria

import (
	"math"

	"habitat_scrooper/models"
	"habitat_scrooper/textnorm"
)

type Weights struct {
	Amenity               float64
	PreferredNeighborhood float64
	Commute               float64
	WetArea               float64
	Sport                 float64
}

func DefaultWeights() Weights {
	return Weights{
		Amenity:               10,
		PreferredNeighborhood: 15,
		Commute:               20,
		WetArea:               8,
		Sport:                 8,
	}
}

type Evaluator struct {
	Weights Weights
}

func NewEvaluator() *Evaluator {
	return &Evaluator{Weights: DefaultWeights()}
}

func (e *Evaluator) Evaluate(p models.CanonicalProperty, c models.SearchCriteria) models.ScoredProperty {
	scored := models.ScoredProperty{CanonicalProperty: p}
	if _, failed := Violation(p, c.Hard); failed {
		return scored
	}
	scored.HardMatch = true
	scored.Score = e.Score(p, c.Preferences)
	return scored
}

// Violation returns the first hard requirement p does not meet. Missing
// data is not a pass: a 0 extracted for rooms still fails a minimum of 1.
func Violation(p models.CanonicalProperty, h models.HardRequirements) (string, bool) {
	if h.Operation != "" {
		want, _ := models.ParseOperation(string(h.Operation))
		if want != "" && p.Operation != want {
			return "operation", true
		}
	}

	if len(h.PropertyTypes) > 0 && !matchesAny(h.PropertyTypes, func(t string) bool {
		return textnorm.Equal(t, p.PropertyType)
	}) {
		return "property_type", true
	}

	if h.Location.City != "" &&
		!textnorm.Contains(p.Location.City, h.Location.City) &&
		!textnorm.Contains(p.Location.Address, h.Location.City) {
		return "city", true
	}

	if len(h.Location.Neighborhoods) > 0 && !matchesAny(h.Location.Neighborhoods, func(n string) bool {
		return neighborhoodMatches(p.Location, n)
	}) {
		return "neighborhood", true
	}

	switch {
	case !h.Rooms.Contains(p.Rooms):
		return "rooms", true
	case !h.Bathrooms.Contains(p.Bathrooms):
		return "bathrooms", true
	case !h.Parking.Contains(p.Parking):
		return "parking", true
	case !h.Area.Contains(p.Area):
		return "area", true
	case !h.TotalPrice.Contains(p.TotalPrice):
		return "total_price", true
	case !h.Stratum.Contains(p.Stratum):
		return "stratum", true
	}
	return "", false
}

// neighborhoodMatches is a case-insensitive substring test on the address
// or an exact match on the neighborhood field.
func neighborhoodMatches(loc models.Location, want string) bool {
	return textnorm.Contains(loc.Address, want) || textnorm.Equal(loc.Neighborhood, want)
}

// Score adds a fixed weight for every satisfied preference. It never
// excludes a property.
func (e *Evaluator) Score(p models.CanonicalProperty, prefs models.Preferences) float64 {
	var score float64

	for _, a := range prefs.Amenities {
		if textnorm.AnyContains(p.Amenities, a) {
			score += e.Weights.Amenity
		}
	}

	if matchesAny(prefs.PreferredNeighborhoods, func(n string) bool {
		return neighborhoodMatches(p.Location, n)
	}) {
		score += e.Weights.PreferredNeighborhood
	}

	if prefs.MaxCommuteMinutes > 0 && prefs.CommuteDestination != nil {
		if minutes, ok := CommuteMinutes(p.Location.Coordinates, *prefs.CommuteDestination); ok &&
			minutes <= float64(prefs.MaxCommuteMinutes) {
			score += e.Weights.Commute
		}
	}

	for _, w := range prefs.WetAreas {
		if hasFeature(p, w) {
			score += e.Weights.WetArea
		}
	}
	for _, s := range prefs.SportFeatures {
		if hasFeature(p, s) {
			score += e.Weights.Sport
		}
	}

	return score
}

func hasFeature(p models.CanonicalProperty, feature string) bool {
	return textnorm.AnyContains(p.Amenities, feature) || textnorm.Contains(p.Description, feature)
}

func matchesAny(values []string, fn func(string) bool) bool {
	for _, v := range values {
		if fn(v) {
			return true
		}
	}
	return false
}

const (
	earthRadiusKm     = 6371.0
	urbanSpeedKmh     = 22.0
	commuteOverheadMn = 5.0
)

// CommuteMinutes estimates door-to-door time from straight-line distance at
// an average urban speed plus a fixed overhead.
func CommuteMinutes(from *models.GeoPoint, to models.GeoPoint) (float64, bool) {
	if from == nil {
		return 0, false
	}
	km := HaversineKm(*from, to)
	return km/urbanSpeedKmh*60 + commuteOverheadMn, true
}

func HaversineKm(a, b models.GeoPoint) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
