package workers

import (
	"context"
	"log/slog"
	"time"
)

type Sweeper interface {
	Sweep(ctx context.Context, sources []string) int64
}

// HealthcheckWorker periodically retires stored properties no search has
// seen recently.
type HealthcheckWorker struct {
	sweeper   Sweeper
	sources   []string
	triggerCh chan struct{}
	logger    *slog.Logger
}

func NewHealthcheckWorker(sweeper Sweeper, sources []string, logger *slog.Logger) *HealthcheckWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthcheckWorker{
		sweeper:   sweeper,
		sources:   sources,
		triggerCh: make(chan struct{}, 1),
		logger:    logger.With("component", "healthcheck_worker"),
	}
}

// Trigger causes the worker to run immediately. Triggers arriving while one
// is pending collapse into it.
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run sweeps every interval until ctx is done.
func (w *HealthcheckWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("healthcheck worker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		case <-w.triggerCh:
			w.logger.Info("healthcheck worker triggered manually")
			w.sweep(ctx)
		}
	}
}

func (w *HealthcheckWorker) sweep(ctx context.Context) {
	start := time.Now()
	n := w.sweeper.Sweep(ctx, w.sources)
	w.logger.Info("healthcheck sweep finished", "retired", n, "sources", len(w.sources), "duration", time.Since(start))
}
