package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"habitat_scrooper/criteria"
	"habitat_scrooper/dedupe"
	"habitat_scrooper/identity"
	"habitat_scrooper/models"
	"habitat_scrooper/normalize"
)

// Orchestrator fans a search out to every adapter and folds the results
// into one ranked page. It holds no per-search state, so concurrent
// Search calls only share the adapters' rate limiters.
type Orchestrator struct {
	adapters   []SourceAdapter
	normalizer *normalize.Normalizer
	evaluator  *criteria.Evaluator
	logger     *slog.Logger
	newRunID   func() string
}

type Option func(*Orchestrator)

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

func WithEvaluator(e *criteria.Evaluator) Option {
	return func(o *Orchestrator) { o.evaluator = e }
}

func WithRunIDs(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

func NewOrchestrator(adapters []SourceAdapter, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		adapters:   adapters,
		normalizer: normalize.New(),
		evaluator:  criteria.NewEvaluator(),
		logger:     logger.With("component", "orchestrator"),
		newRunID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) SourceIDs() []string {
	ids := make([]string, len(o.adapters))
	for i, a := range o.adapters {
		ids[i] = a.ID()
	}
	return ids
}

type searchOptions struct {
	sort models.SortKey
}

type SearchOption func(*searchOptions)

func WithSort(key models.SortKey) SearchOption {
	return func(s *searchOptions) { s.sort = key }
}

type sourceOutcome struct {
	batch    *models.ScrapeBatch
	err      error
	status   models.SourceStatus
	duration time.Duration
}

// Search validates c, scrapes every source concurrently, then normalizes,
// filters, dedupes, sorts and slices the merged records. Only a
// *models.ValidationError or the caller's own cancellation is returned as an
// error; source failures are reported in SourceBreakdown.
func (o *Orchestrator) Search(ctx context.Context, c models.SearchCriteria, page, limit int, opts ...SearchOption) (*models.SearchResult, error) {
	start := time.Now()

	so := searchOptions{sort: models.SortByScore}
	for _, opt := range opts {
		opt(&so)
	}

	if page < 1 {
		return nil, &models.ValidationError{Field: "page", Reason: "must be at least 1"}
	}
	if limit < 1 {
		return nil, &models.ValidationError{Field: "limit", Reason: "must be at least 1"}
	}
	if err := criteria.Validate(c); err != nil {
		return nil, err
	}

	runID := o.newRunID()
	logger := o.logger.With("run_id", runID)
	logger.Info("search started", "sources", len(o.adapters), "page", page, "limit", limit, "sort", so.sort)

	outcomes := o.fanOut(ctx, c)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.SearchResult{
		RunID:           runID,
		Page:            page,
		Limit:           limit,
		SourceBreakdown: make(map[string]models.SourceReport, len(o.adapters)),
	}

	var matched []models.ScoredProperty
	for i, adapter := range o.adapters {
		out := outcomes[i]
		report := models.SourceReport{
			Source:     adapter.ID(),
			Status:     out.status,
			DurationMs: out.duration.Milliseconds(),
		}

		if out.err != nil {
			report.Error = out.err.Error()
			logger.Warn("source failed", "source", adapter.ID(), "status", out.status, "error", out.err)
			result.SourceBreakdown[adapter.ID()] = report
			continue
		}

		report.Raw = len(out.batch.Records)
		report.Pages = out.batch.Pages
		report.Skipped = out.batch.Skipped
		report.PostFiltered = out.batch.PostFiltered
		result.Diagnostics.ExtractionSkips += out.batch.Skipped

		for _, raw := range out.batch.Records {
			prop, err := o.normalizer.Normalize(raw, adapter.Schema())
			if err != nil {
				report.Rejected++
				result.Diagnostics.NormalizeRejects++
				logger.Debug("record rejected", "source", adapter.ID(), "error", err)
				continue
			}

			scored := o.evaluator.Evaluate(*prop, c)
			if !scored.HardMatch {
				result.Diagnostics.HardRejects++
				if reason, _ := criteria.Violation(*prop, c.Hard); reason != "" {
					logger.Debug("hard requirement not met", "source", adapter.ID(), "id", prop.ID, "requirement", reason)
				}
				continue
			}
			matched = append(matched, scored)
		}

		result.SourceBreakdown[adapter.ID()] = report
	}

	deduper := dedupe.New(func(d dedupe.Discard) {
		logger.Debug("duplicate dropped", "id", d.Dropped.ID, "kept", d.KeptID)
	})
	kept, discards := deduper.Dedupe(matched)
	result.Diagnostics.DuplicatesRemoved = len(discards)

	for _, p := range kept {
		report := result.SourceBreakdown[p.Source]
		report.Count++
		result.SourceBreakdown[p.Source] = report
	}

	result.Diagnostics.PossibleDuplicates = identity.FindPossibleDuplicates(kept)

	SortProperties(kept, so.sort)
	result.Total = len(kept)
	result.Matched = kept
	result.Properties = Paginate(kept, page, limit)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	logger.Info("search finished",
		"total", result.Total,
		"returned", len(result.Properties),
		"failed_sources", len(result.FailedSources()),
		"duration_ms", result.ExecutionTimeMs)

	return result, nil
}

// fanOut runs every adapter in its own goroutine under its own timeout and
// waits for all of them. A timeout cancels only that source.
func (o *Orchestrator) fanOut(ctx context.Context, c models.SearchCriteria) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(o.adapters))

	var wg sync.WaitGroup
	for i, adapter := range o.adapters {
		wg.Add(1)
		go func(i int, adapter SourceAdapter) {
			defer wg.Done()
			outcomes[i] = o.scrapeSource(ctx, adapter, c)
		}(i, adapter)
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) scrapeSource(ctx context.Context, adapter SourceAdapter, c models.SearchCriteria) (out sourceOutcome) {
	timeout := adapter.Schema().Limits.Timeout()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = sourceOutcome{
				err:    fmt.Errorf("%s: adapter panic: %v", adapter.ID(), r),
				status: models.SourceStatusFailed,
			}
		}
		out.duration = time.Since(start)
	}()

	batch, err := adapter.Scrape(sctx, c, 1)
	switch {
	case err == nil && batch == nil:
		return sourceOutcome{batch: &models.ScrapeBatch{Source: adapter.ID()}, status: models.SourceStatusOK}
	case err == nil:
		return sourceOutcome{batch: batch, status: models.SourceStatusOK}
	case ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || sctx.Err() == context.DeadlineExceeded):
		return sourceOutcome{
			err:    &models.SourceTimeoutError{Source: adapter.ID(), Timeout: timeout},
			status: models.SourceStatusTimeout,
		}
	default:
		return sourceOutcome{err: err, status: models.SourceStatusFailed}
	}
}
