// Package ratelimit paces and caps outbound requests per source.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"habitat_scrooper/config"
)

type Limits struct {
	RequestsPerMinute int
	Delay             time.Duration
	MaxConcurrent     int
}

func LimitsFromSchema(l config.Limits) Limits {
	return Limits{
		RequestsPerMinute: l.RequestsPerMinute,
		Delay:             l.Delay(),
		MaxConcurrent:     l.Concurrency(),
	}
}

// Interval is the minimum spacing between two permits.
func (l Limits) Interval() time.Duration {
	interval := l.Delay
	if l.RequestsPerMinute > 0 {
		if perReq := time.Minute / time.Duration(l.RequestsPerMinute); perReq > interval {
			interval = perReq
		}
	}
	return interval
}

type sourceLimiter struct {
	spacing *rate.Limiter
	slots   chan struct{}
}

func newSourceLimiter(l Limits) *sourceLimiter {
	limit := rate.Inf
	if interval := l.Interval(); interval > 0 {
		limit = rate.Every(interval)
	}
	slots := l.MaxConcurrent
	if slots <= 0 {
		slots = 1
	}
	return &sourceLimiter{
		spacing: rate.NewLimiter(limit, 1),
		slots:   make(chan struct{}, slots),
	}
}

// Registry holds one independent limiter per source id.
type Registry struct {
	mu      sync.Mutex
	sources map[string]*sourceLimiter
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sources: make(map[string]*sourceLimiter),
		logger:  logger.With("component", "ratelimit"),
	}
}

func (r *Registry) Register(sourceID string, l Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[sourceID] = newSourceLimiter(l)
	r.logger.Debug("limiter registered", "source", sourceID,
		"interval", l.Interval(), "max_concurrent", l.MaxConcurrent)
}

func (r *Registry) limiter(sourceID string) *sourceLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.sources[sourceID]
	if !ok {
		r.logger.Warn("no limits registered, using unpaced single slot", "source", sourceID)
		sl = newSourceLimiter(Limits{MaxConcurrent: 1})
		r.sources[sourceID] = sl
	}
	return sl
}

// Permit is one granted request slot. Release returns the slot; the
// spacing timer is unaffected.
type Permit struct {
	Source   string
	IssuedAt time.Time

	once    sync.Once
	release func()
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.release)
}

// Acquire blocks until the source has a free concurrency slot and its
// inter-request spacing has elapsed. On cancellation both the slot and the
// spacing reservation are handed back.
func (r *Registry) Acquire(ctx context.Context, sourceID string) (*Permit, error) {
	sl := r.limiter(sourceID)

	select {
	case sl.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	now := time.Now()
	res := sl.spacing.ReserveN(now, 1)
	if !res.OK() {
		<-sl.slots
		return nil, fmt.Errorf("ratelimit %s: reservation refused", sourceID)
	}

	delay := res.DelayFrom(now)
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			res.Cancel()
			<-sl.slots
			return nil, ctx.Err()
		}
	}

	return &Permit{
		Source:   sourceID,
		IssuedAt: now.Add(delay),
		release:  func() { <-sl.slots },
	}, nil
}

// Do runs fn under a permit and releases it on every exit path, panics
// included.
func (r *Registry) Do(ctx context.Context, sourceID string, fn func(ctx context.Context) error) error {
	permit, err := r.Acquire(ctx, sourceID)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn(ctx)
}

// Outstanding reports how many permits for sourceID are held right now.
func (r *Registry) Outstanding(sourceID string) int {
	r.mu.Lock()
	sl, ok := r.sources[sourceID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return len(sl.slots)
}
