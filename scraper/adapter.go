package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"habitat_scrooper/config"
	"habitat_scrooper/httputil"
	"habitat_scrooper/models"
	"habitat_scrooper/ratelimit"
)

// SourceAdapter fetches one listing portal and extracts raw records.
// Implementations skip malformed listings and only fail on fetch errors.
type SourceAdapter interface {
	ID() string
	Schema() *config.SourceSchema
	Scrape(ctx context.Context, criteria models.SearchCriteria, page int) (*models.ScrapeBatch, error)
}

// PageArchive receives every fetched page body.
type PageArchive interface {
	Put(ctx context.Context, source, pageURL string, body []byte) error
}

type Deps struct {
	Limiter   *ratelimit.Registry
	Clients   *httputil.Clients
	Archive   PageArchive
	Logger    *slog.Logger
	UserAgent string
	Headless  bool
}

func NewAdapter(schema *config.SourceSchema, deps Deps) (SourceAdapter, error) {
	switch schema.Extraction.Method {
	case config.MethodHTML:
		return NewHTMLAdapter(schema, deps), nil
	case config.MethodBrowser:
		return NewBrowserAdapter(schema, deps), nil
	case config.MethodAPI:
		return NewAPIAdapter(schema, deps), nil
	default:
		return nil, fmt.Errorf("source %s: unknown extraction method %q", schema.ID, schema.Extraction.Method)
	}
}

// BuildAdapters creates adapters for every active source and registers its
// limits with deps.Limiter.
func BuildAdapters(sources map[string]*config.SourceSchema, deps Deps) ([]SourceAdapter, error) {
	var adapters []SourceAdapter
	for _, id := range sortedKeys(sources) {
		schema := sources[id]
		if !schema.IsActive() {
			continue
		}
		adapter, err := NewAdapter(schema, deps)
		if err != nil {
			return nil, err
		}
		if deps.Limiter != nil {
			deps.Limiter.Register(schema.ID, ratelimit.LimitsFromSchema(schema.Limits))
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
