// Package sweeper evicts finished jobs once they are older than the
// retention window.
//
// A sweep removes completed, failed and cancelled jobs whose completion
// time precedes now minus the retention window. Pending, in-flight and
// retrying jobs are never removed.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Target deletes terminal jobs that completed before cutoff and reports
// how many it removed.
type Target interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// Sweeper runs periodic sweeps on a constant-delay schedule.
type Sweeper struct {
	target    Target
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cronlib.Cron
	lastRun time.Time
	removed int
}

// New creates a stopped sweeper.
func New(target Target, interval, retention time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		target:    target,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules sweeps every interval. Intervals under a second are
// rounded up to one second by the schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cronlib.New(cronlib.WithChain(cronlib.SkipIfStillRunning(cronlib.DiscardLogger)))
	c.Schedule(cronlib.Every(s.interval), cronlib.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()
	s.cron = c

	s.logger.Info("retention sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Stop cancels future sweeps and waits for a running one to finish or
// ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.target.SweepExpired(ctx, now.Add(-s.retention))

	s.mu.Lock()
	s.lastRun = now
	s.removed += n
	s.mu.Unlock()

	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Info("retention sweep removed jobs", slog.Int("removed", n))
	}
	return n, nil
}

// LastRun returns when the last sweep ran, or the zero time.
func (s *Sweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Removed returns how many jobs all sweeps have removed.
func (s *Sweeper) Removed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}
