package models

import (
	"time"
)

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

type Location struct {
	Address      string    `json:"address" db:"address"`
	Neighborhood string    `json:"neighborhood" db:"neighborhood"`
	Zone         string    `json:"zone,omitempty" db:"zone"`
	City         string    `json:"city" db:"city"`
	Coordinates  *GeoPoint `json:"coordinates,omitempty"`
	Geohash      string    `json:"geohash,omitempty" db:"geohash"`
}

// CanonicalProperty is the source-independent listing. Built once per
// scrape-and-normalize cycle and never mutated afterwards.
type CanonicalProperty struct {
	ID           string    `json:"id" db:"id"` // <source>:<source-local id>
	Title        string    `json:"title" db:"title"`
	Price        float64   `json:"price" db:"price"`
	AdminFee     float64   `json:"adminFee" db:"admin_fee"`
	TotalPrice   float64   `json:"totalPrice" db:"total_price"`
	Area         float64   `json:"area" db:"area"`
	Rooms        int       `json:"rooms" db:"rooms"`
	Bathrooms    int       `json:"bathrooms" db:"bathrooms"`
	Parking      int       `json:"parking" db:"parking"`
	Stratum      int       `json:"stratum,omitempty" db:"stratum"`
	PropertyType string    `json:"propertyType" db:"property_type"`
	Operation    Operation `json:"operation,omitempty" db:"operation"`
	Location     Location  `json:"location"`
	Amenities    []string  `json:"amenities" db:"amenities"`
	Images       []string  `json:"images" db:"images"`
	URL          string    `json:"url" db:"url"`
	Source       string    `json:"source" db:"source"`
	ScrapedAt    time.Time `json:"scrapedDate" db:"scraped_at"`
	PricePerM2   float64   `json:"pricePerM2" db:"price_per_m2"`
	Description  string    `json:"description" db:"description"`
	IsActive     bool      `json:"isActive" db:"is_active"`
}

// ScoredProperty is a property after criteria evaluation. Only HardMatch
// records reach a SearchResult.
type ScoredProperty struct {
	CanonicalProperty
	Score     float64 `json:"score"`
	HardMatch bool    `json:"-"`
}
