package scraper

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

const (
	waitPollMs   = 500
	maxWaitPolls = 20
)

// BrowserAdapter renders client-side listing pages in headless Chromium and
// hands the resulting HTML to the same selector extraction as HTMLAdapter.
type BrowserAdapter struct {
	crawler
	headless  bool
	userAgent string
}

func NewBrowserAdapter(schema *config.SourceSchema, deps Deps) *BrowserAdapter {
	a := &BrowserAdapter{headless: deps.Headless, userAgent: deps.UserAgent}
	a.crawler = newCrawler(schema, deps, a)
	return a
}

func (a *BrowserAdapter) openFetcher(ctx context.Context) (pageFetcher, error) {
	fail := func(err error) error {
		return &models.SourceFetchError{Source: a.schema.ID, URL: a.schema.Search.BaseURL, Err: err}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fail(fmt.Errorf("failed to start playwright: %w", err))
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(a.headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fail(fmt.Errorf("failed to launch browser: %w", err))
	}

	var pageOpts playwright.BrowserNewPageOptions
	if a.userAgent != "" {
		pageOpts.UserAgent = playwright.String(a.userAgent)
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fail(fmt.Errorf("failed to create page: %w", err))
	}

	f := &browserFetcher{
		source:  a.schema.ID,
		pw:      pw,
		browser: browser,
		page:    page,
		waitFor: a.schema.Extraction.WaitFor,
		timeout: float64(a.schema.Limits.Timeout().Milliseconds()),
	}
	// Closing the browser aborts a navigation in flight.
	f.stop = context.AfterFunc(ctx, func() { browser.Close() })
	return f, nil
}

func (a *BrowserAdapter) parsePage(body []byte, _ string) pageResult {
	return extractHTML(body, a.schema.Extraction)
}

type browserFetcher struct {
	source  string
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	waitFor string
	timeout float64
	stop    func() bool
}

func (f *browserFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if _, err := f.page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(f.timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.SourceFetchError{Source: f.source, URL: pageURL, Err: err}
	}

	f.waitForListings(ctx)

	content, err := f.page.Content()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.SourceFetchError{Source: f.source, URL: pageURL, Err: err}
	}
	return []byte(content), nil
}

// waitForListings polls until the listing selector renders. A page that
// never shows one is returned as is and yields no records.
func (f *browserFetcher) waitForListings(ctx context.Context) {
	if f.waitFor == "" {
		return
	}
	locator := f.page.Locator(f.waitFor)
	for i := 0; i < maxWaitPolls && ctx.Err() == nil; i++ {
		if n, _ := locator.Count(); n > 0 {
			return
		}
		f.page.WaitForTimeout(waitPollMs)
	}
}

func (f *browserFetcher) Close() {
	f.stop()
	f.page.Close()
	f.browser.Close()
	f.pw.Stop()
}
