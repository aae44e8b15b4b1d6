package scraper

import (
	"context"
	"log/slog"
	"sort"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
	"habitat_scrooper/ratelimit"
)

type pageResult struct {
	records []models.RawRecord
	skipped int
	hasNext bool
}

// pageFetcher is one adapter invocation's connection to the source: a
// collector, an HTTP client or a browser page.
type pageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
	Close()
}

type pageSource interface {
	openFetcher(ctx context.Context) (pageFetcher, error)
	parsePage(body []byte, pageURL string) pageResult
}

// crawler walks result pages for one source. Every fetch runs under a
// limiter permit for the source id.
type crawler struct {
	schema  *config.SourceSchema
	limiter *ratelimit.Registry
	archive PageArchive
	logger  *slog.Logger
	src     pageSource
}

func newCrawler(schema *config.SourceSchema, deps Deps, src pageSource) crawler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewRegistry(logger)
		limiter.Register(schema.ID, ratelimit.LimitsFromSchema(schema.Limits))
	}
	return crawler{
		schema:  schema,
		limiter: limiter,
		archive: deps.Archive,
		logger:  logger.With("source", schema.ID),
		src:     src,
	}
}

func (c *crawler) ID() string {
	return c.schema.ID
}

func (c *crawler) Schema() *config.SourceSchema {
	return c.schema
}

// Scrape crawls pages page..page+maxPages-1 and stops early when a page has
// no next-page indicator. Any fetch failure fails the whole source.
func (c *crawler) Scrape(ctx context.Context, criteria models.SearchCriteria, page int) (*models.ScrapeBatch, error) {
	if page < 1 {
		page = 1
	}
	batch := &models.ScrapeBatch{
		Source:       c.schema.ID,
		PostFiltered: PostFiltered(c.schema, criteria),
	}

	fetcher, err := c.src.openFetcher(ctx)
	if err != nil {
		return nil, err
	}
	defer fetcher.Close()

	last := page + c.schema.Limits.Pages() - 1
	for p := page; p <= last; p++ {
		pageURL, err := BuildQuery(c.schema, criteria, p)
		if err != nil {
			return nil, err
		}

		var body []byte
		err = c.limiter.Do(ctx, c.schema.ID, func(ctx context.Context) error {
			var ferr error
			body, ferr = fetcher.Fetch(ctx, pageURL)
			return ferr
		})
		if err != nil {
			return nil, err
		}

		if c.archive != nil {
			if err := c.archive.Put(ctx, c.schema.ID, pageURL, body); err != nil {
				c.logger.Warn("archive page failed", "url", pageURL, "error", err)
			}
		}

		result := c.src.parsePage(body, pageURL)
		batch.Pages++
		batch.Records = append(batch.Records, result.records...)
		batch.Skipped += result.skipped

		c.logger.Debug("page scraped", "page", p, "url", pageURL,
			"records", len(result.records), "skipped", result.skipped, "has_next", result.hasNext)

		if !result.hasNext {
			break
		}
	}

	return batch, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
