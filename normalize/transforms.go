package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"habitat_scrooper/config"
)

// Transform rewrites the raw values of one canonical field into their
// canonical textual form. An empty result means the field is missing.
type Transform func(values []string, schema *config.SourceSchema) []string

var (
	intPattern   = regexp.MustCompile(`\d+`)
	floatPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	nonDigit     = regexp.MustCompile(`\D`)
	pricePattern = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+|\d+`)
)

// Values meaning "this listing has no amenities".
var amenitySentinels = map[string]bool{
	"not available": true,
	"no disponible": true,
	"n/a":           true,
	"ninguna":       true,
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

var transforms = map[string]Transform{
	"trim":      trimFirst,
	"lower":     lowerFirst,
	"price":     priceDigits,
	"first_int": firstInt,
	"float":     firstFloat,
	"amenities": splitAmenities,
	"list":      cleanList,
	"location":  trimFirst,
	"url":       absoluteURL,
	"urls":      absoluteURLs,
	"bool":      parseBool,
	"timestamp": parseTimestamp,
}

// Transform used for a canonical key when the schema names none.
var defaultTransforms = map[string]string{
	"id":            "trim",
	"title":         "trim",
	"price":         "price",
	"admin_fee":     "price",
	"total_price":   "price",
	"area":          "float",
	"rooms":         "first_int",
	"bathrooms":     "first_int",
	"parking":       "first_int",
	"stratum":       "first_int",
	"property_type": "lower",
	"operation":     "lower",
	"location":      "location",
	"address":       "trim",
	"neighborhood":  "trim",
	"zone":          "trim",
	"city":          "trim",
	"latitude":      "float",
	"longitude":     "float",
	"amenities":     "amenities",
	"images":        "urls",
	"url":           "url",
	"description":   "trim",
	"scraped_at":    "timestamp",
	"active":        "bool",
}

// Lookup returns the named transform.
func Lookup(name string) (Transform, bool) {
	t, ok := transforms[name]
	return t, ok
}

func transformFor(key string, schema *config.SourceSchema) Transform {
	if name, ok := schema.OutputMapping.Transformations[key]; ok {
		if t, ok := transforms[name]; ok {
			return t
		}
	}
	if t, ok := transforms[defaultTransforms[key]]; ok {
		return t
	}
	return trimFirst
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func one(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func trimFirst(values []string, _ *config.SourceSchema) []string {
	return one(strings.Join(strings.Fields(first(values)), " "))
}

func lowerFirst(values []string, s *config.SourceSchema) []string {
	return one(strings.ToLower(first(trimFirst(values, s))))
}

// priceDigits takes the first amount in the text and drops its thousands
// separators, so "$2.500.000 + $350.000 admón" yields 2500000.
func priceDigits(values []string, _ *config.SourceSchema) []string {
	return one(nonDigit.ReplaceAllString(pricePattern.FindString(first(values)), ""))
}

func firstInt(values []string, _ *config.SourceSchema) []string {
	return one(intPattern.FindString(first(values)))
}

func firstFloat(values []string, _ *config.SourceSchema) []string {
	return one(strings.Replace(floatPattern.FindString(first(values)), ",", ".", 1))
}

func splitAmenities(values []string, _ *config.SourceSchema) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		if amenitySentinels[strings.ToLower(strings.TrimSpace(v))] {
			continue
		}
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] || amenitySentinels[strings.ToLower(part)] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

func cleanList(values []string, _ *config.SourceSchema) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func absoluteURL(values []string, s *config.SourceSchema) []string {
	return one(resolve(first(values), s))
}

func absoluteURLs(values []string, s *config.SourceSchema) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		u := resolve(strings.TrimSpace(v), s)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func resolve(ref string, s *config.SourceSchema) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.IsAbs() || s == nil || s.Search.BaseURL == "" {
		return u.String()
	}
	base, err := url.Parse(s.Search.BaseURL)
	if err != nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func parseBool(values []string, _ *config.SourceSchema) []string {
	switch v := strings.ToLower(first(values)); v {
	case "":
		return nil
	case "true", "1", "yes", "si", "sí", "activo", "active":
		return []string{"true"}
	default:
		return []string{"false"}
	}
}

func parseTimestamp(values []string, _ *config.SourceSchema) []string {
	v := first(values)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return []string{t.UTC().Format(time.RFC3339)}
		}
	}
	return nil
}
