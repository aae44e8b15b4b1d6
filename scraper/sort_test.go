package scraper

import (
	"math"
	"reflect"
	"testing"
	"time"

	"habitat_scrooper/models"
)

func sortable(id string, score, total float64, rooms int, area float64, scraped time.Time) models.ScoredProperty {
	return models.ScoredProperty{
		CanonicalProperty: models.CanonicalProperty{
			ID:         id,
			Price:      total,
			TotalPrice: total,
			Rooms:      rooms,
			Area:       area,
			ScrapedAt:  scraped,
		},
		Score: score,
	}
}

func order(props []models.ScoredProperty) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.ID
	}
	return out
}

func TestSortProperties(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	base := []models.ScoredProperty{
		sortable("a", 20, 3000000, 3, 80, t0),
		sortable("b", 35, 3500000, 4, 95, t0),
		sortable("c", 20, 2500000, 3, 120, t0.Add(time.Hour)),
		sortable("d", 0, 2500000, 2, 60, t0),
	}

	tests := []struct {
		key  models.SortKey
		want []string
	}{
		{models.SortByScore, []string{"b", "c", "a", "d"}},
		{models.SortByPriceAsc, []string{"c", "d", "a", "b"}},
		{models.SortByRoomsDesc, []string{"b", "c", "a", "d"}},
		{models.SortByAreaDesc, []string{"c", "b", "a", "d"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			props := append([]models.ScoredProperty(nil), base...)
			SortProperties(props, tt.key)
			if got := order(props); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSortProperties_IDBreaksFullTies(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	props := []models.ScoredProperty{
		sortable("z", 10, 1000, 1, 50, t0),
		sortable("m", 10, 1000, 1, 50, t0),
		sortable("a", 10, 1000, 1, 50, t0),
	}
	SortProperties(props, models.SortByScore)
	if got := order(props); !reflect.DeepEqual(got, []string{"a", "m", "z"}) {
		t.Fatalf("expected id order, got %v", got)
	}
}

func TestPaginate(t *testing.T) {
	props := make([]models.ScoredProperty, 5)
	for i := range props {
		props[i].ID = string(rune('a' + i))
	}

	tests := []struct {
		page, limit int
		want        []string
	}{
		{1, 2, []string{"a", "b"}},
		{3, 2, []string{"e"}},
		{4, 2, []string{}},
		{1, 10, []string{"a", "b", "c", "d", "e"}},
		{2, math.MaxInt, []string{}},
		{1, math.MaxInt, []string{"a", "b", "c", "d", "e"}},
		{math.MaxInt/2 + 2, 2, []string{}},
		{math.MaxInt, 3, []string{}},
	}
	for _, tt := range tests {
		got := Paginate(props, tt.page, tt.limit)
		if got == nil {
			t.Fatalf("page %d limit %d: expected non-nil slice", tt.page, tt.limit)
		}
		if ids := order(got); !reflect.DeepEqual(ids, tt.want) {
			t.Fatalf("page %d limit %d: expected %v, got %v", tt.page, tt.limit, tt.want, ids)
		}
	}
}

func TestPaginate_EmptyInput(t *testing.T) {
	if got := Paginate(nil, 1, 20); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil page, got %v", got)
	}
}
