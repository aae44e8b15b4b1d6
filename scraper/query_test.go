package scraper

import (
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

// shippedSource returns a copy of one of the site files under config/sites,
// so tests can point it at a local server without touching the others.
func shippedSource(t *testing.T, id string) *config.SourceSchema {
	t.Helper()
	sources, err := config.LoadSources(filepath.Join("..", "config", "sites"))
	if err != nil {
		t.Fatalf("load shipped sites: %v", err)
	}
	schema, ok := sources[id]
	if !ok {
		t.Fatalf("source %s not shipped", id)
	}
	cp := *schema
	return &cp
}

func bogotaCriteria() models.SearchCriteria {
	return models.SearchCriteria{
		Hard: models.HardRequirements{
			Operation:     models.OperationRent,
			PropertyTypes: []string{"apartamento"},
			Location: models.LocationRequirement{
				City:          "Bogotá",
				Neighborhoods: []string{"Usaquén", "Chapinero"},
			},
			Rooms:      models.Between(3, 4),
			Area:       models.AtLeast(70.0),
			TotalPrice: models.AtMost(4200000.0),
		},
	}
}

func TestBuildQuery_PathAndParams(t *testing.T) {
	schema := shippedSource(t, "fincaraiz")

	got, err := BuildQuery(schema, bogotaCriteria(), 1)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	want := "https://www.fincaraiz.com.co/arriendo/apartamentos/bogota?habitaciones=3&pagina=1&precio-hasta=4200000"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBuildQuery_PathDefaultsFillMissingFilters(t *testing.T) {
	schema := shippedSource(t, "fincaraiz")
	c := models.SearchCriteria{Hard: models.HardRequirements{Operation: models.OperationSale}}

	got, err := BuildQuery(schema, c, 3)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	want := "https://www.fincaraiz.com.co/venta/inmuebles/colombia?pagina=3"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBuildQuery_RangeParams(t *testing.T) {
	schema := shippedSource(t, "metrocuadrado")

	raw, err := BuildQuery(schema, bogotaCriteria(), 2)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	if u.Path != "/rest-search/search" {
		t.Fatalf("unexpected path %s", u.Path)
	}

	q := u.Query()
	want := map[string]string{
		"page":                   "2",
		"realEstateBusinessList": "arriendo",
		"realEstateTypeList":     "apartamento",
		"city":                   "bogota",
		"roomsFrom":              "3",
		"roomsTo":                "4",
		"areaFrom":               "70",
		"priceTo":                "4200000",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Fatalf("param %s: expected %q, got %q", k, v, got)
		}
	}
	for _, k := range []string{"areaTo", "stratumFrom", "stratumTo"} {
		if q.Has(k) {
			t.Fatalf("param %s should be omitted when its filter is unset", k)
		}
	}
}

func TestBuildQuery_UnsupportedFiltersStayOutOfURL(t *testing.T) {
	schema := shippedSource(t, "fincaraiz")
	schema.Search.SupportsURLFiltering = false

	got, err := BuildQuery(schema, bogotaCriteria(), 1)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	want := "https://www.fincaraiz.com.co/inmuebles/colombia?pagina=1"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPostFiltered(t *testing.T) {
	finca := shippedSource(t, "fincaraiz")
	metro := shippedSource(t, "metrocuadrado")

	tests := []struct {
		name     string
		schema   *config.SourceSchema
		criteria models.SearchCriteria
		want     []string
	}{
		{
			name:     "fincaraiz rechecks rooms and price",
			schema:   finca,
			criteria: bogotaCriteria(),
			want:     []string{"neighborhood", "rooms", "area", "price"},
		},
		{
			name:     "metrocuadrado filters most natively",
			schema:   metro,
			criteria: bogotaCriteria(),
			want:     []string{"neighborhood"},
		},
		{
			name:   "several property types need a second pass",
			schema: metro,
			criteria: models.SearchCriteria{Hard: models.HardRequirements{
				PropertyTypes: []string{"apartamento", "casa"},
			}},
			want: []string{"property_type"},
		},
		{
			name:     "empty criteria",
			schema:   finca,
			criteria: models.SearchCriteria{},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PostFiltered(tt.schema, tt.criteria)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
