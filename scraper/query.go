package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
	"habitat_scrooper/textnorm"
)

var (
	placeholderRegex = regexp.MustCompile(`\{([a-z_]+)\}`)
	repeatedSlash    = regexp.MustCompile(`/{2,}`)
)

// Order in which populated requirements are reported as post-filtered.
var filterOrder = []string{
	config.FilterOperation,
	config.FilterPropertyType,
	config.FilterCity,
	config.FilterNeighborhood,
	config.FilterRooms,
	config.FilterBathrooms,
	config.FilterParking,
	config.FilterArea,
	config.FilterPrice,
	config.FilterStratum,
}

// BuildQuery renders the listing URL for page. Placeholders are filled only
// for filters the source can apply natively; the rest stay empty and are
// enforced after the fetch.
func BuildQuery(schema *config.SourceSchema, criteria models.SearchCriteria, page int) (string, error) {
	base, err := url.Parse(schema.Search.BaseURL)
	if err != nil {
		return "", fmt.Errorf("source %s: base url: %w", schema.ID, err)
	}

	values := queryValues(schema, criteria)
	values["page"] = strconv.Itoa(page)

	path := placeholderRegex.ReplaceAllStringFunc(schema.Search.Path, func(m string) string {
		name := m[1 : len(m)-1]
		if v := values[name]; v != "" {
			return v
		}
		return schema.Search.PathDefaults[name]
	})
	path = repeatedSlash.ReplaceAllString(path, "/")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + path

	q := base.Query()
	for _, name := range sortedKeys(schema.Search.Params) {
		if v, ok := fillTemplate(schema.Search.Params[name], values); ok {
			q.Set(name, v)
		}
	}
	if schema.Search.PageParam != "" {
		q.Set(schema.Search.PageParam, values["page"])
	}
	base.RawQuery = q.Encode()

	return base.String(), nil
}

// fillTemplate reports false when any placeholder in tmpl has no value.
func fillTemplate(tmpl string, values map[string]string) (string, bool) {
	complete := true
	out := placeholderRegex.ReplaceAllStringFunc(tmpl, func(m string) string {
		v := values[m[1:len(m)-1]]
		if v == "" {
			complete = false
		}
		return v
	})
	return out, complete
}

func queryValues(schema *config.SourceSchema, c models.SearchCriteria) map[string]string {
	h := c.Hard
	values := make(map[string]string)

	text := func(filter, value string) {
		if value == "" || !schema.Supports(filter) {
			return
		}
		values[filter] = textnorm.Slug(schema.Translate(filter, value))
	}

	if op, err := models.ParseOperation(string(h.Operation)); err == nil && op != "" {
		text(config.FilterOperation, string(op))
	}
	if len(h.PropertyTypes) == 1 {
		text(config.FilterPropertyType, h.PropertyTypes[0])
	}
	text(config.FilterCity, h.Location.City)
	if len(h.Location.Neighborhoods) == 1 {
		text(config.FilterNeighborhood, h.Location.Neighborhoods[0])
	}

	intRange(values, schema, config.FilterRooms, h.Rooms)
	intRange(values, schema, config.FilterBathrooms, h.Bathrooms)
	intRange(values, schema, config.FilterParking, h.Parking)
	floatRange(values, schema, config.FilterArea, h.Area)
	floatRange(values, schema, config.FilterPrice, h.TotalPrice)
	intRange(values, schema, config.FilterStratum, h.Stratum)

	return values
}

func intRange(values map[string]string, schema *config.SourceSchema, filter string, r models.IntRange) {
	if !schema.Supports(filter) {
		return
	}
	if r.Min != nil {
		values[filter+"_min"] = strconv.Itoa(*r.Min)
	}
	if r.Max != nil {
		values[filter+"_max"] = strconv.Itoa(*r.Max)
	}
}

func floatRange(values map[string]string, schema *config.SourceSchema, filter string, r models.FloatRange) {
	if !schema.Supports(filter) {
		return
	}
	if r.Min != nil {
		values[filter+"_min"] = strconv.FormatFloat(*r.Min, 'f', -1, 64)
	}
	if r.Max != nil {
		values[filter+"_max"] = strconv.FormatFloat(*r.Max, 'f', -1, 64)
	}
}

// PostFiltered lists the populated requirements the source cannot apply in
// its query, plus those it declares need a second check.
func PostFiltered(schema *config.SourceSchema, c models.SearchCriteria) []string {
	recheck := make(map[string]bool)
	for _, f := range schema.Search.RequiresPostFiltering {
		recheck[f] = true
	}

	var out []string
	for _, filter := range filterOrder {
		if !populated(c.Hard, filter) {
			continue
		}
		if !schema.Supports(filter) || recheck[filter] || !singleValued(c.Hard, filter) {
			out = append(out, filter)
		}
	}
	return out
}

func populated(h models.HardRequirements, filter string) bool {
	switch filter {
	case config.FilterOperation:
		return h.Operation != ""
	case config.FilterPropertyType:
		return len(h.PropertyTypes) > 0
	case config.FilterCity:
		return h.Location.City != ""
	case config.FilterNeighborhood:
		return len(h.Location.Neighborhoods) > 0
	case config.FilterRooms:
		return h.Rooms.IsSet()
	case config.FilterBathrooms:
		return h.Bathrooms.IsSet()
	case config.FilterParking:
		return h.Parking.IsSet()
	case config.FilterArea:
		return h.Area.IsSet()
	case config.FilterPrice:
		return h.TotalPrice.IsSet()
	case config.FilterStratum:
		return h.Stratum.IsSet()
	}
	return false
}

// singleValued is false for set filters a URL can only carry one value of.
func singleValued(h models.HardRequirements, filter string) bool {
	switch filter {
	case config.FilterPropertyType:
		return len(h.PropertyTypes) <= 1
	case config.FilterNeighborhood:
		return len(h.Location.Neighborhoods) <= 1
	}
	return true
}
