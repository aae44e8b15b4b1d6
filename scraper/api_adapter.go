package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

const maxAPIBody = 10 << 20

// APIAdapter reads JSON search endpoints.
type APIAdapter struct {
	crawler
	client    *http.Client
	userAgent string
}

func NewAPIAdapter(schema *config.SourceSchema, deps Deps) *APIAdapter {
	a := &APIAdapter{userAgent: deps.UserAgent, client: &http.Client{Timeout: 30 * time.Second}}
	if deps.Clients != nil && deps.Clients.Scraping != nil {
		a.client = deps.Clients.Scraping
	}
	a.crawler = newCrawler(schema, deps, a)
	return a
}

func (a *APIAdapter) openFetcher(context.Context) (pageFetcher, error) {
	return &httpFetcher{
		source:    a.schema.ID,
		client:    a.client,
		timeout:   a.schema.Limits.Timeout(),
		userAgent: a.userAgent,
	}, nil
}

func (a *APIAdapter) parsePage(body []byte, pageURL string) pageResult {
	result, err := extractJSON(body, a.schema.Extraction)
	if err != nil {
		a.logger.Warn("unreadable api page", "url", pageURL, "error", err)
	}
	return result
}

type httpFetcher struct {
	source    string
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

func (f *httpFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &models.SourceFetchError{Source: f.source, URL: pageURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.SourceFetchError{Source: f.source, URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.SourceFetchError{
			Source:     f.source,
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBody))
	if err != nil {
		return nil, &models.SourceFetchError{Source: f.source, URL: pageURL, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}

func (f *httpFetcher) Close() {}
