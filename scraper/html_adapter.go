package scraper

import (
	"context"
	"net/http"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

// HTMLAdapter fetches server-rendered listing pages with colly and extracts
// them with goquery selectors.
type HTMLAdapter struct {
	crawler
	transport http.RoundTripper
	userAgent string
}

func NewHTMLAdapter(schema *config.SourceSchema, deps Deps) *HTMLAdapter {
	a := &HTMLAdapter{userAgent: deps.UserAgent}
	if deps.Clients != nil && deps.Clients.Scraping != nil {
		a.transport = deps.Clients.Scraping.Transport
	}
	a.crawler = newCrawler(schema, deps, a)
	return a
}

func (a *HTMLAdapter) openFetcher(ctx context.Context) (pageFetcher, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	}
	if a.userAgent != "" {
		opts = append(opts, colly.UserAgent(a.userAgent))
	}

	c := colly.NewCollector(opts...)
	if a.userAgent == "" {
		extensions.RandomUserAgent(c)
	}
	extensions.Referer(c)
	if a.transport != nil {
		c.WithTransport(a.transport)
	}
	c.SetRequestTimeout(a.schema.Limits.Timeout())

	f := &collyFetcher{source: a.schema.ID, collector: c}
	c.OnResponse(func(r *colly.Response) {
		f.body = r.Body
		f.status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			f.status = r.StatusCode
		}
	})
	return f, nil
}

func (a *HTMLAdapter) parsePage(body []byte, _ string) pageResult {
	return extractHTML(body, a.schema.Extraction)
}

// collyFetcher serves one crawl; pages are fetched one after another so the
// callback state needs no locking.
type collyFetcher struct {
	source    string
	collector *colly.Collector
	body      []byte
	status    int
}

func (f *collyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	f.body, f.status = nil, 0

	if err := f.collector.Visit(pageURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.SourceFetchError{Source: f.source, URL: pageURL, StatusCode: f.status, Err: err}
	}
	return f.body, nil
}

func (f *collyFetcher) Close() {}
