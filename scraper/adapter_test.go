package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

type recordingArchive struct {
	mu   sync.Mutex
	urls []string
}

func (a *recordingArchive) Put(_ context.Context, _, pageURL string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.urls = append(a.urls, pageURL)
	return nil
}

// pageServer serves fixtures keyed by the value of pageParam and counts hits.
type pageServer struct {
	mu        sync.Mutex
	pageParam string
	pages     map[string]string
	status    int
	hits      []string
}

func (s *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := r.URL.Query().Get(s.pageParam)
	s.hits = append(s.hits, r.URL.Path+"#"+page)

	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	body, ok := s.pages[page]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte(body))
}

func (s *pageServer) hitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

// localSource points a shipped site file at srv with pacing disabled.
func localSource(t *testing.T, id string, srv *httptest.Server) *config.SourceSchema {
	t.Helper()
	schema := shippedSource(t, id)
	schema.Search.BaseURL = srv.URL
	schema.Limits.DelayBetweenRequestsMs = 0
	schema.Limits.RequestsPerMinute = 0
	schema.Limits.TimeoutMs = 5000
	return schema
}

func TestHTMLAdapter_FollowsPagination(t *testing.T) {
	ps := &pageServer{
		pageParam: "pagina",
		pages: map[string]string{
			"1": string(loadFixture(t, "listing_page1.html")),
			"2": string(loadFixture(t, "listing_page2.html")),
		},
	}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	archive := &recordingArchive{}
	adapter := NewHTMLAdapter(localSource(t, "fincaraiz", srv), Deps{Archive: archive, UserAgent: "habitat-test"})

	batch, err := adapter.Scrape(context.Background(), bogotaCriteria(), 1)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if batch.Pages != 2 || ps.hitCount() != 2 {
		t.Fatalf("expected 2 pages fetched, got %d pages and %d hits", batch.Pages, ps.hitCount())
	}
	if ps.hits[0] != "/arriendo/apartamentos/bogota#1" {
		t.Fatalf("unexpected first request %s", ps.hits[0])
	}
	if len(batch.Records) != 4 || batch.Skipped != 1 {
		t.Fatalf("expected 4 records and 1 skip, got %d and %d", len(batch.Records), batch.Skipped)
	}
	if batch.Source != "fincaraiz" || len(batch.PostFiltered) == 0 {
		t.Fatalf("unexpected batch metadata %+v", batch)
	}
	if len(archive.urls) != 2 {
		t.Fatalf("expected every page archived, got %v", archive.urls)
	}
}

func TestHTMLAdapter_StopsAtMaxPages(t *testing.T) {
	page := string(loadFixture(t, "listing_page1.html"))
	ps := &pageServer{
		pageParam: "pagina",
		pages:     map[string]string{"1": page, "2": page, "3": page, "4": page},
	}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	adapter := NewHTMLAdapter(localSource(t, "fincaraiz", srv), Deps{})

	batch, err := adapter.Scrape(context.Background(), bogotaCriteria(), 1)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if batch.Pages != 3 || ps.hitCount() != 3 {
		t.Fatalf("expected max_pages of 3 to cap the crawl, got %d pages and %d hits", batch.Pages, ps.hitCount())
	}
}

func TestHTMLAdapter_StatusErrorFailsSource(t *testing.T) {
	ps := &pageServer{pageParam: "pagina", status: http.StatusInternalServerError}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	adapter := NewHTMLAdapter(localSource(t, "fincaraiz", srv), Deps{})

	batch, err := adapter.Scrape(context.Background(), bogotaCriteria(), 1)
	if batch != nil {
		t.Fatalf("expected no batch on failure, got %+v", batch)
	}
	var fetchErr *models.SourceFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected SourceFetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError || fetchErr.Source != "fincaraiz" {
		t.Fatalf("unexpected error details %+v", fetchErr)
	}
}

func TestAPIAdapter_ReadsPagesUntilNextIsNull(t *testing.T) {
	ps := &pageServer{
		pageParam: "page",
		pages: map[string]string{
			"1": string(loadFixture(t, "api_page1.json")),
			"2": string(loadFixture(t, "api_page2.json")),
		},
	}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	schema := localSource(t, "metrocuadrado", srv)
	schema.Limits.MaxPages = 5
	adapter := NewAPIAdapter(schema, Deps{})

	batch, err := adapter.Scrape(context.Background(), bogotaCriteria(), 1)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if batch.Pages != 2 || ps.hitCount() != 2 {
		t.Fatalf("expected 2 pages, got %d pages and %d hits", batch.Pages, ps.hitCount())
	}
	if len(batch.Records) != 2 || batch.Skipped != 2 {
		t.Fatalf("expected 2 records and 2 skips, got %d and %d", len(batch.Records), batch.Skipped)
	}
	if got := batch.Records[1].Get("id"); got != "MC-78" {
		t.Fatalf("expected second page record MC-78, got %s", got)
	}
}

func TestAPIAdapter_StatusErrorFailsSource(t *testing.T) {
	ps := &pageServer{pageParam: "page", status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	adapter := NewAPIAdapter(localSource(t, "metrocuadrado", srv), Deps{})

	_, err := adapter.Scrape(context.Background(), bogotaCriteria(), 1)
	var fetchErr *models.SourceFetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 SourceFetchError, got %v", err)
	}
}

func TestAPIAdapter_CancelledContext(t *testing.T) {
	ps := &pageServer{pageParam: "page", pages: map[string]string{"1": `{"results": []}`}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	adapter := NewAPIAdapter(localSource(t, "metrocuadrado", srv), Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := adapter.Scrape(ctx, bogotaCriteria(), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildAdapters_SkipsInactiveSources(t *testing.T) {
	sources, err := config.LoadSources("../config/sites")
	if err != nil {
		t.Fatalf("load sites: %v", err)
	}

	adapters, err := BuildAdapters(sources, Deps{})
	if err != nil {
		t.Fatalf("build adapters: %v", err)
	}

	var ids []string
	for _, a := range adapters {
		ids = append(ids, a.ID())
	}
	want := []string{"ciencuadras", "fincaraiz", "metrocuadrado"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	if _, ok := adapters[0].(*BrowserAdapter); !ok {
		t.Fatalf("expected ciencuadras to use the browser adapter, got %T", adapters[0])
	}
}
