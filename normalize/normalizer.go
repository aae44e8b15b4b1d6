// Package normalize turns raw source records into canonical properties.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcloughlin/geohash"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

// ErrRejected wraps every reason a record is dropped during normalization.
var ErrRejected = errors.New("record rejected")

const (
	minTitleLength   = 5
	geohashPrecision = 9
)

type Normalizer struct {
	Now func() time.Time
}

func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

type fields map[string][]string

func (f fields) text(key string) string {
	return first(f[key])
}

func (f fields) number(key string) float64 {
	v, err := strconv.ParseFloat(f.text(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func (f fields) has(key string) bool {
	return f.text(key) != ""
}

// Normalize maps, transforms and defaults raw into a CanonicalProperty.
// Rejections wrap ErrRejected.
func (n *Normalizer) Normalize(raw models.RawRecord, schema *config.SourceSchema) (*models.CanonicalProperty, error) {
	f := n.canonicalFields(raw, schema)

	title := f.text("title")
	if utf8.RuneCountInString(title) < minTitleLength {
		return nil, fmt.Errorf("%w: title %q shorter than %d characters", ErrRejected, title, minTitleLength)
	}

	p := &models.CanonicalProperty{
		Title:        title,
		Price:        f.number("price"),
		AdminFee:     f.number("admin_fee"),
		Area:         f.number("area"),
		Rooms:        int(f.number("rooms")),
		Bathrooms:    int(f.number("bathrooms")),
		Parking:      int(f.number("parking")),
		Stratum:      int(f.number("stratum")),
		PropertyType: f.text("property_type"),
		Location:     buildLocation(f),
		Amenities:    f["amenities"],
		Images:       f["images"],
		URL:          f.text("url"),
		Source:       schema.ID,
		Description:  f.text("description"),
		IsActive:     true,
	}

	if op, err := models.ParseOperation(f.text("operation")); err == nil {
		p.Operation = op
	}

	switch {
	case f.has("total_price"):
		p.TotalPrice = f.number("total_price")
	case schema.OutputMapping.PriceIncludesAdmin:
		p.TotalPrice = p.Price
	default:
		p.TotalPrice = p.Price + p.AdminFee
	}

	if p.Area > 0 {
		p.PricePerM2 = math.Round(p.Price / p.Area)
	}

	if p.Amenities == nil {
		p.Amenities = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	if f.has("active") {
		p.IsActive = f.text("active") == "true"
	}

	p.ScrapedAt = n.now()
	if ts := f.text("scraped_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.ScrapedAt = t
		}
	}

	p.ID = schema.ID + ":" + localID(f, p)
	return p, nil
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// canonicalFields renames raw keys through field_mappings, applies the
// per-field transform and fills gaps from defaults. When two raw keys map to
// the same canonical key the alphabetically first non-empty one wins.
func (n *Normalizer) canonicalFields(raw models.RawRecord, schema *config.SourceSchema) fields {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := make(fields)
	for _, k := range keys {
		key := schema.CanonicalKey(k)
		if len(f[key]) > 0 {
			continue
		}
		if vals := transformFor(key, schema)(raw[k], schema); len(vals) > 0 {
			f[key] = vals
		}
	}

	for key, def := range schema.OutputMapping.Defaults {
		if len(f[key]) > 0 {
			continue
		}
		if vals := transformFor(key, schema)([]string{def}, schema); len(vals) > 0 {
			f[key] = vals
		}
	}
	return f
}

// buildLocation splits the free-text location on commas: the first segment
// is the neighborhood, the second the zone, the whole string the address.
// Dedicated fields override the split.
func buildLocation(f fields) models.Location {
	var loc models.Location

	if text := f.text("location"); text != "" {
		loc.Address = text
		parts := strings.Split(text, ",")
		loc.Neighborhood = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			loc.Zone = strings.TrimSpace(parts[1])
		}
	}

	if v := f.text("address"); v != "" {
		loc.Address = v
	}
	if v := f.text("neighborhood"); v != "" {
		loc.Neighborhood = v
	}
	if v := f.text("zone"); v != "" {
		loc.Zone = v
	}
	loc.City = f.text("city")

	if loc.Address == "" {
		loc.Address = strings.Join(nonEmpty(loc.Neighborhood, loc.Zone, loc.City), ", ")
	}

	if f.has("latitude") && f.has("longitude") {
		lat, lng := f.number("latitude"), f.number("longitude")
		if validCoordinates(lat, lng) {
			loc.Coordinates = &models.GeoPoint{Lat: lat, Lng: lng}
			loc.Geohash = geohash.EncodeWithPrecision(lat, lng, geohashPrecision)
		}
	}
	return loc
}

func validCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// localID prefers the source's own id, then the listing URL, then the
// listing's visible facts.
func localID(f fields, p *models.CanonicalProperty) string {
	if id := f.text("id"); id != "" {
		return id
	}
	seed := p.URL
	if seed == "" {
		seed = fmt.Sprintf("%s|%.0f|%.0f|%s", p.Title, p.Price, p.Area, p.Location.Address)
	}
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])[:12]
}
