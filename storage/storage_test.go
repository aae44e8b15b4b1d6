package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"habitat_scrooper/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	run := &models.SearchRun{
		ID:           "run-1",
		SearchName:   "usaquen_family",
		CriteriaJSON: `{"hard":{"operation":"rent"}}`,
		StartedAt:    started,
		Status:       models.RunStatusRunning,
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	finished := started.Add(3 * time.Second)
	run.FinishedAt = &finished
	run.Status = models.RunStatusPartial
	run.Total = 12
	run.SourcesFailed = 1
	run.ExecutionTimeMs = 3000
	if err := store.FinishRun(run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got == nil || got.Status != models.RunStatusPartial || got.Total != 12 || got.FinishedAt == nil {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.SearchName != "usaquen_family" || got.CriteriaJSON != run.CriteriaJSON {
		t.Fatalf("expected name and criteria round-tripped, got %+v", got)
	}

	missing, err := store.GetRun("nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil run for unknown id, got %+v, %v", missing, err)
	}
}

func TestSQLiteStore_SourceRunsAndStats(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	for i, status := range []models.SourceStatus{models.SourceStatusOK, models.SourceStatusTimeout, models.SourceStatusOK, models.SourceStatusOK} {
		runID := "run-" + string(rune('a'+i))
		if err := store.CreateRun(&models.SearchRun{ID: runID, StartedAt: t0, Status: models.RunStatusRunning}); err != nil {
			t.Fatalf("create run: %v", err)
		}
		rep := models.SourceReport{
			Source:       "fincaraiz",
			Status:       status,
			Count:        i,
			Raw:          10,
			Pages:        2,
			PostFiltered: []string{"rooms", "price"},
			DurationMs:   int64(1000 * (i + 1)),
		}
		if status != models.SourceStatusOK {
			rep.Error = "fincaraiz: timed out after 30s"
		}
		if err := store.RecordSource(runID, t0.Add(time.Duration(i)*time.Hour), rep); err != nil {
			t.Fatalf("record source: %v", err)
		}
	}

	runs, err := store.SourceRuns("run-b")
	if err != nil {
		t.Fatalf("source runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 source run, got %d", len(runs))
	}
	rep := runs[0].Report
	if rep.Status != models.SourceStatusTimeout || rep.Error == "" || len(rep.PostFiltered) != 2 || rep.Source != "fincaraiz" {
		t.Fatalf("unexpected report %+v", rep)
	}

	stats, err := store.SourceStats("fincaraiz")
	if err != nil {
		t.Fatalf("source stats: %v", err)
	}
	if stats.Runs != 4 || stats.SuccessRate != 0.75 || stats.AvgDurationMs != 2500 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.LastRunAt == nil || !stats.LastRunAt.Equal(t0.Add(3*time.Hour)) || stats.LastStatus != "ok" {
		t.Fatalf("unexpected last run %+v", stats)
	}

	empty, err := store.SourceStats("metrocuadrado")
	if err != nil {
		t.Fatalf("source stats: %v", err)
	}
	if empty.Runs != 0 || empty.LastRunAt != nil {
		t.Fatalf("expected empty stats, got %+v", empty)
	}
}

func TestSQLiteStore_RecentRunsAndLogs(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "middle", "new"} {
		if err := store.CreateRun(&models.SearchRun{ID: id, StartedAt: t0.Add(time.Duration(i) * time.Minute), Status: models.RunStatusCompleted}); err != nil {
			t.Fatalf("create run: %v", err)
		}
	}

	runs, err := store.RecentRuns(2)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "middle" {
		t.Fatalf("expected newest two runs, got %+v", runs)
	}

	if err := store.Log("new", models.LogLevelWarn, "source failed", "ciencuadras"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := store.Log("new", models.LogLevelInfo, "search finished", ""); err != nil {
		t.Fatalf("log: %v", err)
	}
	logs, err := store.RunLogs("new")
	if err != nil {
		t.Fatalf("run logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Level != models.LogLevelWarn || logs[0].SourceID != "ciencuadras" {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_Put(t *testing.T) {
	putter := &fakePutter{}
	archive := &S3Archive{
		client: putter,
		bucket: "habitat-raw",
		now:    func() time.Time { return time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC) },
	}

	if err := archive.Put(context.Background(), "fincaraiz", "https://www.fincaraiz.com.co/arriendo?pagina=1", []byte("<html></html>")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := archive.Put(context.Background(), "metrocuadrado", "https://www.metrocuadrado.com/rest-search/search?page=1", []byte(` {"results": []}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	if len(putter.inputs) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(putter.inputs))
	}
	html := putter.inputs[0]
	key := aws.ToString(html.Key)
	if !strings.HasPrefix(key, "raw/fincaraiz/2026-05-04/") || !strings.HasSuffix(key, ".html") {
		t.Fatalf("unexpected key %s", key)
	}
	if aws.ToString(html.Bucket) != "habitat-raw" || aws.ToString(html.ContentType) != "text/html; charset=utf-8" {
		t.Fatalf("unexpected upload %+v", html)
	}
	if key2 := aws.ToString(putter.inputs[1].Key); !strings.HasSuffix(key2, ".json") {
		t.Fatalf("expected json extension, got %s", key2)
	}

	again := archive.Key("fincaraiz", "https://www.fincaraiz.com.co/arriendo?pagina=1", nil)
	if again != key {
		t.Fatalf("expected stable keys per url and day, got %s and %s", key, again)
	}
}
