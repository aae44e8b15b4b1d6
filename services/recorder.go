package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"habitat_scrooper/models"
)

// RunStore is the run history a Recorder writes to.
type RunStore interface {
	CreateRun(run *models.SearchRun) error
	FinishRun(run *models.SearchRun) error
	RecordSource(runID string, startedAt time.Time, rep models.SourceReport) error
	Log(runID string, level models.LogLevel, message, sourceID string) error
}

// PropertyStore keeps every property a run matched, not only the returned page.
type PropertyStore interface {
	UpsertProperties(ctx context.Context, runID string, props []models.ScoredProperty) error
}

// Recorder persists finished searches: the run, one row per source and,
// when a property store is configured, the matched properties.
type Recorder struct {
	runs   RunStore
	props  PropertyStore
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(runs RunStore, props PropertyStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		runs:   runs,
		props:  props,
		logger: logger.With("component", "recorder"),
		now:    time.Now,
	}
}

func (r *Recorder) Record(ctx context.Context, name string, criteria models.SearchCriteria, result *models.SearchResult) error {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}

	finished := r.now()
	started := finished.Add(-time.Duration(result.ExecutionTimeMs) * time.Millisecond)
	failed := result.FailedSources()

	run := &models.SearchRun{
		ID:           result.RunID,
		SearchName:   name,
		CriteriaJSON: string(criteriaJSON),
		StartedAt:    started,
		Status:       models.RunStatusRunning,
	}
	if err := r.runs.CreateRun(run); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}

	sources := make([]string, 0, len(result.SourceBreakdown))
	for id := range result.SourceBreakdown {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	for _, id := range sources {
		rep := result.SourceBreakdown[id]
		if err := r.runs.RecordSource(run.ID, started, rep); err != nil {
			return fmt.Errorf("record source %s: %w", id, err)
		}
		if rep.Failed() {
			r.log(run.ID, models.LogLevelWarn, fmt.Sprintf("source %s: %s", rep.Status, rep.Error), id)
		}
	}
	r.log(run.ID, models.LogLevelInfo,
		fmt.Sprintf("%d properties, %d returned, %d duplicates removed", result.Total, len(result.Properties), result.Diagnostics.DuplicatesRemoved), "")

	run.FinishedAt = &finished
	run.Status = runStatus(len(sources), len(failed))
	run.Total = result.Total
	run.SourcesFailed = len(failed)
	run.ExecutionTimeMs = result.ExecutionTimeMs
	if err := r.runs.FinishRun(run); err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}

	snapshot := result.Matched
	if snapshot == nil {
		snapshot = result.Properties
	}
	if r.props != nil && len(snapshot) > 0 {
		if err := r.props.UpsertProperties(ctx, run.ID, snapshot); err != nil {
			return fmt.Errorf("store properties for run %s: %w", run.ID, err)
		}
	}

	r.logger.Info("search recorded", "run_id", run.ID, "search", name, "status", run.Status, "total", run.Total)
	return nil
}

func (r *Recorder) log(runID string, level models.LogLevel, message, sourceID string) {
	if err := r.runs.Log(runID, level, message, sourceID); err != nil {
		r.logger.Warn("failed to write run log", "run_id", runID, "error", err)
	}
}

func runStatus(sources, failed int) models.RunStatus {
	switch {
	case sources > 0 && failed == sources:
		return models.RunStatusFailed
	case failed > 0:
		return models.RunStatusPartial
	default:
		return models.RunStatusCompleted
	}
}
