package criteria

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"habitat_scrooper/models"
)

func bogotaCriteria() models.SearchCriteria {
	return models.SearchCriteria{
		Hard: models.HardRequirements{
			Operation:     "arriendo",
			PropertyTypes: []string{"apartamento"},
			Location: models.LocationRequirement{
				City:          "Bogotá",
				Neighborhoods: []string{"Usaquén"},
			},
			Rooms:      models.Between(3, 4),
			Area:       models.Between(70.0, 110.0),
			TotalPrice: models.AtMost(3500000.0),
		},
	}
}

func property(rooms int, area, price float64, address string) models.CanonicalProperty {
	return models.CanonicalProperty{
		ID:           fmt.Sprintf("fixture:%d-%.0f-%.0f-%s", rooms, area, price, address),
		Title:        "Apartamento de prueba",
		Price:        price,
		TotalPrice:   price,
		Area:         area,
		Rooms:        rooms,
		PropertyType: "apartamento",
		Operation:    models.OperationRent,
		Location:     models.Location{Address: address, City: "Bogotá"},
		ScrapedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate_BogotaScenario(t *testing.T) {
	e := NewEvaluator()
	c := bogotaCriteria()

	addresses := []string{"Calle 120, USAQUÉN, Bogotá", "Chapinero Alto, Bogotá"}
	matched := 0
	for _, rooms := range []int{2, 3, 4, 5} {
		for _, area := range []float64{60, 80, 120} {
			for _, price := range []float64{2000000, 4000000} {
				for _, addr := range addresses {
					got := e.Evaluate(property(rooms, area, price, addr), c)
					want := (rooms == 3 || rooms == 4) && area == 80 && price == 2000000 && addr == addresses[0]
					if got.HardMatch != want {
						t.Fatalf("rooms=%d area=%v price=%v addr=%q: hard match %v, want %v",
							rooms, area, price, addr, got.HardMatch, want)
					}
					if got.HardMatch {
						matched++
					}
				}
			}
		}
	}
	if matched != 2 {
		t.Fatalf("expected 2 matches, got %d", matched)
	}
}

func TestViolation_FirstFailedRequirement(t *testing.T) {
	c := bogotaCriteria()
	base := property(3, 80, 2000000, "Usaquén, Bogotá")

	tests := []struct {
		name   string
		mutate func(*models.CanonicalProperty)
		want   string
	}{
		{"sale listing", func(p *models.CanonicalProperty) { p.Operation = models.OperationSale }, "operation"},
		{"unknown operation", func(p *models.CanonicalProperty) { p.Operation = "" }, "operation"},
		{"house", func(p *models.CanonicalProperty) { p.PropertyType = "casa" }, "property_type"},
		{"other city", func(p *models.CanonicalProperty) {
			p.Location = models.Location{Address: "Usaquén, Medellín", City: "Medellín"}
		}, "city"},
		{"other neighborhood", func(p *models.CanonicalProperty) { p.Location.Address = "Suba, Bogotá" }, "neighborhood"},
		{"rooms missing", func(p *models.CanonicalProperty) { p.Rooms = 0 }, "rooms"},
		{"too big", func(p *models.CanonicalProperty) { p.Area = 110.5 }, "area"},
		{"too expensive", func(p *models.CanonicalProperty) { p.TotalPrice = 3500001 }, "total_price"},
	}

	for _, tt := range tests {
		p := base
		tt.mutate(&p)
		got, failed := Violation(p, c.Hard)
		if !failed || got != tt.want {
			t.Fatalf("%s: expected violation %q, got %q (failed=%v)", tt.name, tt.want, got, failed)
		}
	}

	if got, failed := Violation(base, c.Hard); failed {
		t.Fatalf("base property should match, failed on %s", got)
	}
}

func TestViolation_NeighborhoodFieldMatch(t *testing.T) {
	c := bogotaCriteria()
	p := property(3, 80, 2000000, "Carrera 7 # 119-20")
	p.Location.Neighborhood = "usaquén"
	if got, failed := Violation(p, c.Hard); failed {
		t.Fatalf("neighborhood field should satisfy the requirement, failed on %s", got)
	}
}

func TestViolation_UnsetRequirementsPass(t *testing.T) {
	p := models.CanonicalProperty{Title: "Bodega sin datos"}
	if got, failed := Violation(p, models.HardRequirements{}); failed {
		t.Fatalf("empty requirements must not constrain, failed on %s", got)
	}
}

func TestViolation_ZeroParkingPassesWithoutMinimum(t *testing.T) {
	h := models.HardRequirements{Parking: models.AtMost(1)}
	p := models.CanonicalProperty{Parking: 0}
	if _, failed := Violation(p, h); failed {
		t.Fatalf("0 parking lies within [*, 1]")
	}
	h.Parking = models.AtLeast(1)
	if _, failed := Violation(p, h); !failed {
		t.Fatalf("0 parking must fail a minimum of 1")
	}
}

func TestScore(t *testing.T) {
	e := NewEvaluator()
	dest := models.GeoPoint{Lat: 4.6584, Lng: -74.0547}
	prefs := models.Preferences{
		MaxCommuteMinutes:      30,
		CommuteDestination:     &dest,
		Amenities:              []string{"gimnasio", "ascensor", "terraza"},
		PreferredNeighborhoods: []string{"Santa Bárbara"},
		WetAreas:               []string{"piscina", "sauna"},
		SportFeatures:          []string{"cancha"},
	}

	p := models.CanonicalProperty{
		Amenities:   []string{"Gimnasio", "Ascensor", "Piscina climatizada"},
		Description: "Conjunto con cancha múltiple",
		Location: models.Location{
			Address:     "Santa Bárbara, Usaquén",
			Coordinates: &models.GeoPoint{Lat: 4.6951, Lng: -74.0312},
		},
	}

	// 2 amenities + neighborhood + commute + piscina + cancha
	want := 2*10.0 + 15 + 20 + 8 + 8
	if got := e.Score(p, prefs); got != want {
		t.Fatalf("expected score %v, got %v", want, got)
	}

	p.Location.Coordinates = nil
	if got := e.Score(p, prefs); got != want-20 {
		t.Fatalf("properties without coordinates never earn the commute weight, got %v", got)
	}

	if got := e.Score(models.CanonicalProperty{}, prefs); got != 0 {
		t.Fatalf("expected 0 for a bare property, got %v", got)
	}
}

func TestEvaluate_ScoreOnlyForHardMatches(t *testing.T) {
	e := NewEvaluator()
	c := bogotaCriteria()
	c.Preferences.PreferredNeighborhoods = []string{"Usaquén"}

	hit := e.Evaluate(property(3, 80, 2000000, "Usaquén, Bogotá"), c)
	if !hit.HardMatch || hit.Score != 15 {
		t.Fatalf("expected hard match scored 15, got %+v", hit)
	}

	miss := e.Evaluate(property(5, 80, 2000000, "Usaquén, Bogotá"), c)
	if miss.HardMatch || miss.Score != 0 {
		t.Fatalf("expected unscored miss, got match=%v score=%v", miss.HardMatch, miss.Score)
	}
}

func TestCommuteMinutes(t *testing.T) {
	a := models.GeoPoint{Lat: 4.6951, Lng: -74.0312}
	b := models.GeoPoint{Lat: 4.6584, Lng: -74.0547}

	km := HaversineKm(a, b)
	if km < 4.5 || km > 5.5 {
		t.Fatalf("expected roughly 4.8km, got %v", km)
	}

	minutes, ok := CommuteMinutes(&a, b)
	if !ok {
		t.Fatalf("expected an estimate")
	}
	if want := km/22*60 + 5; math.Abs(minutes-want) > 1e-9 {
		t.Fatalf("expected %v minutes, got %v", want, minutes)
	}

	if _, ok := CommuteMinutes(nil, b); ok {
		t.Fatalf("no coordinates, no estimate")
	}
}

func TestValidate(t *testing.T) {
	dest := models.GeoPoint{Lat: 4.6, Lng: -74.1}
	tests := []struct {
		name  string
		c     models.SearchCriteria
		field string
	}{
		{"min above max", models.SearchCriteria{Hard: models.HardRequirements{Rooms: models.Between(4, 3)}}, "hard.rooms"},
		{"negative area", models.SearchCriteria{Hard: models.HardRequirements{Area: models.AtLeast(-1.0)}}, "hard.area"},
		{"price min above max", models.SearchCriteria{Hard: models.HardRequirements{TotalPrice: models.Between(5e6, 1e6)}}, "hard.total_price"},
		{"stratum 7", models.SearchCriteria{Hard: models.HardRequirements{Stratum: models.AtMost(7)}}, "hard.stratum"},
		{"unknown operation", models.SearchCriteria{Hard: models.HardRequirements{Operation: "permuta"}}, "hard.operation"},
		{"neighborhoods without city", models.SearchCriteria{Hard: models.HardRequirements{
			Location: models.LocationRequirement{Neighborhoods: []string{"Usaquén"}},
		}}, "hard.location.city"},
		{"commute without destination", models.SearchCriteria{Preferences: models.Preferences{MaxCommuteMinutes: 30}}, "preferences.commute_destination"},
		{"negative commute", models.SearchCriteria{Preferences: models.Preferences{MaxCommuteMinutes: -5, CommuteDestination: &dest}}, "preferences.max_commute_minutes"},
	}

	for _, tt := range tests {
		err := Validate(tt.c)
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tt.name, err)
		}
		if verr.Field != tt.field {
			t.Fatalf("%s: expected field %s, got %s", tt.name, tt.field, verr.Field)
		}
	}
}

func TestValidate_AcceptsOpenRanges(t *testing.T) {
	valid := []models.SearchCriteria{
		{},
		bogotaCriteria(),
		{Hard: models.HardRequirements{Rooms: models.AtLeast(2), Area: models.AtMost(90.0)}},
		{Hard: models.HardRequirements{Rooms: models.Between(3, 3), Stratum: models.Between(1, 6)}},
	}
	for i, c := range valid {
		if err := Validate(c); err != nil {
			t.Fatalf("case %d: unexpected error %v", i, err)
		}
	}
}
