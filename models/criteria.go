package models

import (
	"fmt"
	"strings"
)

type Operation string

const (
	OperationRent Operation = "rent"
	OperationSale Operation = "sale"
)

var operationAliases = map[string]Operation{
	"rent":     OperationRent,
	"arriendo": OperationRent,
	"alquiler": OperationRent,
	"sale":     OperationSale,
	"venta":    OperationSale,
}

// ParseOperation maps portal wording (arriendo, venta, ...) to an Operation.
// Empty input yields an empty Operation and no error.
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	if op, ok := operationAliases[s]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

type Number interface {
	~int | ~float64
}

// Range is an inclusive bound where either side may be left open.
type Range[T Number] struct {
	Min *T `json:"min,omitempty" yaml:"min,omitempty"`
	Max *T `json:"max,omitempty" yaml:"max,omitempty"`
}

type IntRange = Range[int]
type FloatRange = Range[float64]

func (r Range[T]) IsSet() bool {
	return r.Min != nil || r.Max != nil
}

func (r Range[T]) Valid() bool {
	return r.Min == nil || r.Max == nil || *r.Min <= *r.Max
}

func (r Range[T]) Contains(v T) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r Range[T]) String() string {
	lo, hi := "*", "*"
	if r.Min != nil {
		lo = fmt.Sprint(*r.Min)
	}
	if r.Max != nil {
		hi = fmt.Sprint(*r.Max)
	}
	return "[" + lo + ", " + hi + "]"
}

// Between builds a closed range; use Range{Min: &v} for an open one.
func Between[T Number](min, max T) Range[T] {
	return Range[T]{Min: &min, Max: &max}
}

func AtLeast[T Number](min T) Range[T] {
	return Range[T]{Min: &min}
}

func AtMost[T Number](max T) Range[T] {
	return Range[T]{Max: &max}
}

type LocationRequirement struct {
	City          string   `json:"city,omitempty" yaml:"city,omitempty"`
	Neighborhoods []string `json:"neighborhoods,omitempty" yaml:"neighborhoods,omitempty"`
}

// HardRequirements are must-match filters. Zero values impose no constraint.
type HardRequirements struct {
	Operation     Operation           `json:"operation,omitempty" yaml:"operation,omitempty"`
	PropertyTypes []string            `json:"propertyTypes,omitempty" yaml:"property_types,omitempty"`
	Location      LocationRequirement `json:"location" yaml:"location,omitempty"`
	Rooms         IntRange            `json:"rooms" yaml:"rooms,omitempty"`
	Bathrooms     IntRange            `json:"bathrooms" yaml:"bathrooms,omitempty"`
	Parking       IntRange            `json:"parking" yaml:"parking,omitempty"`
	Area          FloatRange          `json:"area" yaml:"area,omitempty"`
	TotalPrice    FloatRange          `json:"totalPrice" yaml:"total_price,omitempty"`
	Stratum       IntRange            `json:"stratum" yaml:"stratum,omitempty"`
}

// Preferences only affect ranking.
type Preferences struct {
	MaxCommuteMinutes      int       `json:"maxCommuteMinutes,omitempty" yaml:"max_commute_minutes,omitempty"`
	CommuteDestination     *GeoPoint `json:"commuteDestination,omitempty" yaml:"commute_destination,omitempty"`
	Amenities              []string  `json:"amenities,omitempty" yaml:"amenities,omitempty"`
	PreferredNeighborhoods []string  `json:"preferredNeighborhoods,omitempty" yaml:"preferred_neighborhoods,omitempty"`
	WetAreas               []string  `json:"wetAreas,omitempty" yaml:"wet_areas,omitempty"`
	SportFeatures          []string  `json:"sportFeatures,omitempty" yaml:"sport_features,omitempty"`
}

type SearchCriteria struct {
	Hard        HardRequirements `json:"hard" yaml:"hard"`
	Preferences Preferences      `json:"preferences" yaml:"preferences,omitempty"`
}

type SortKey string

const (
	SortByScore     SortKey = "score"
	SortByPriceAsc  SortKey = "price_asc"
	SortByRoomsDesc SortKey = "rooms_desc"
	SortByAreaDesc  SortKey = "area_desc"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortByScore, nil
	case SortByScore, SortByPriceAsc, SortByRoomsDesc, SortByAreaDesc:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}
