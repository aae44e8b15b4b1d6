package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
	"habitat_scrooper/scraper"
)

type Searcher interface {
	Search(ctx context.Context, c models.SearchCriteria, page, limit int, opts ...scraper.SearchOption) (*models.SearchResult, error)
}

type Recorder interface {
	Record(ctx context.Context, name string, c models.SearchCriteria, result *models.SearchResult) error
}

// Scheduler runs every saved search on a cron expression or a fixed
// interval. Ticks never overlap: a tick that fires while the previous one is
// still running is skipped.
type Scheduler struct {
	cfg          config.SchedulerConfig
	searches     []*config.SavedSearch
	defaultLimit int
	searcher     Searcher
	recorder     Recorder
	logger       *slog.Logger

	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped sync.Once
	running sync.Mutex
}

func New(cfg config.SchedulerConfig, searches []*config.SavedSearch, defaultLimit int, searcher Searcher, recorder Recorder, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	return &Scheduler{
		cfg:          cfg,
		searches:     searches,
		defaultLimit: defaultLimit,
		searcher:     searcher,
		recorder:     recorder,
		logger:       logger.With("component", "scheduler"),
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	tick := func() {
		if err := s.RunAll(ctx); err != nil {
			s.logger.Error("scheduled run finished with errors", "error", err)
		}
	}

	switch {
	case s.cfg.Cron != "":
		s.logger.Info("starting scheduler", "cron", s.cfg.Cron, "searches", len(s.searches))
		if _, err := s.cron.AddFunc(s.cfg.Cron, tick); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	case s.cfg.Interval > 0:
		s.logger.Info("starting scheduler", "interval", s.cfg.Interval, "searches", len(s.searches))
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					tick()
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	default:
		s.logger.Warn("no schedule configured, saved searches will not run")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// RunAll executes every saved search once and records each result. Failures
// are collected; one search failing does not stop the rest.
func (s *Scheduler) RunAll(ctx context.Context) error {
	if !s.running.TryLock() {
		s.logger.Warn("previous run still in progress, skipping tick")
		return nil
	}
	defer s.running.Unlock()

	var errs []error
	for _, search := range s.searches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.runSearch(ctx, search); err != nil {
			s.logger.Error("saved search failed", "search", search.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", search.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runSearch(ctx context.Context, search *config.SavedSearch) error {
	sortKey, err := models.ParseSortKey(search.Sort)
	if err != nil {
		return err
	}
	page, limit := search.Page, search.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}

	result, err := s.searcher.Search(ctx, search.Criteria, page, limit, scraper.WithSort(sortKey))
	if err != nil {
		return err
	}

	s.logger.Info("saved search finished",
		"search", search.Name,
		"run_id", result.RunID,
		"total", result.Total,
		"failed_sources", len(result.FailedSources()))

	if s.recorder == nil {
		return nil
	}
	return s.recorder.Record(ctx, search.Name, search.Criteria, result)
}
