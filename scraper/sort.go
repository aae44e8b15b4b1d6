package scraper

import (
	"sort"

	"habitat_scrooper/models"
)

// SortProperties orders props by key. Ties fall back to the most recently
// scraped first, then the cheapest, then the id so the order is total.
func SortProperties(props []models.ScoredProperty, key models.SortKey) {
	sort.SliceStable(props, func(i, j int) bool {
		a, b := &props[i], &props[j]
		if c := compareBy(a, b, key); c != 0 {
			return c < 0
		}
		return tieBreak(a, b) < 0
	})
}

func compareBy(a, b *models.ScoredProperty, key models.SortKey) int {
	switch key {
	case models.SortByPriceAsc:
		return cmpFloat(a.TotalPrice, b.TotalPrice)
	case models.SortByRoomsDesc:
		return -cmpFloat(float64(a.Rooms), float64(b.Rooms))
	case models.SortByAreaDesc:
		return -cmpFloat(a.Area, b.Area)
	default:
		return -cmpFloat(a.Score, b.Score)
	}
}

func tieBreak(a, b *models.ScoredProperty) int {
	switch {
	case a.ScrapedAt.After(b.ScrapedAt):
		return -1
	case a.ScrapedAt.Before(b.ScrapedAt):
		return 1
	}
	if c := cmpFloat(a.Price, b.Price); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Paginate returns the 1-based page of size limit. Pages past the end are
// empty, never nil.
func Paginate(props []models.ScoredProperty, page, limit int) []models.ScoredProperty {
	if page < 1 || limit < 1 || len(props) == 0 || page-1 > (len(props)-1)/limit {
		return []models.ScoredProperty{}
	}
	start := (page - 1) * limit
	end := len(props)
	if limit < end-start {
		end = start + limit
	}
	out := make([]models.ScoredProperty, end-start)
	copy(out, props[start:end])
	return out
}
