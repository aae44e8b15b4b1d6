package services

import (
	"context"
	"log/slog"
	"time"

	"habitat_scrooper/models"
)

type staleMarker interface {
	MarkStaleInactive(ctx context.Context, source string, cutoff time.Time) (int64, error)
}

type sourceHistory interface {
	SourceStats(sourceID string) (*models.SourceStats, error)
}

// HealthcheckService retires stored properties that no search has returned
// for a while.
type HealthcheckService struct {
	store      staleMarker
	history    sourceHistory
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewHealthcheckService(store staleMarker, history sourceHistory, staleAfter time.Duration, logger *slog.Logger) *HealthcheckService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthcheckService{
		store:      store,
		history:    history,
		staleAfter: staleAfter,
		logger:     logger.With("component", "healthcheck"),
		now:        time.Now,
	}
}

// Sweep marks stale properties of every source inactive. A source is only
// swept when its latest recorded outcome succeeded after the cutoff, so a
// failing or idle source keeps its rows. One source failing does not stop
// the others.
func (s *HealthcheckService) Sweep(ctx context.Context, sources []string) int64 {
	cutoff := s.now().Add(-s.staleAfter)
	var total int64
	for _, source := range sources {
		if ok, reason := s.sweepable(source, cutoff); !ok {
			s.logger.Info("skipping stale sweep", "source", source, "reason", reason)
			continue
		}
		n, err := s.store.MarkStaleInactive(ctx, source, cutoff)
		if err != nil {
			s.logger.Warn("stale sweep failed", "source", source, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("marked stale properties inactive", "source", source, "count", n)
		}
		total += n
	}
	return total
}

func (s *HealthcheckService) sweepable(source string, cutoff time.Time) (bool, string) {
	if s.history == nil {
		return true, ""
	}
	stats, err := s.history.SourceStats(source)
	switch {
	case err != nil:
		s.logger.Warn("reading source history failed", "source", source, "error", err)
		return false, "history unavailable"
	case stats == nil || stats.LastRunAt == nil:
		return false, "never run"
	case stats.LastStatus != string(models.SourceStatusOK):
		return false, "latest run " + stats.LastStatus
	case stats.LastRunAt.Before(cutoff):
		return false, "no run since cutoff"
	}
	return true, ""
}
