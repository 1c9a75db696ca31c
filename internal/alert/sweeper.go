package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Lock is a best-effort cross-replica mutex.
type Lock interface {
	// Acquire returns false without error when another holder owns the lock.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RecentProcessor is what a sweep runs.
type RecentProcessor interface {
	ProcessRecent(ctx context.Context) (Summary, error)
}

// Sweeper runs ProcessRecent on a fixed interval.
type Sweeper struct {
	processor RecentProcessor
	lock      Lock
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper. lock may be nil for single-replica
// deployments.
func NewSweeper(p RecentProcessor, lock Lock, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{processor: p, lock: lock, clock: clock, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("alert sweeper started", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert sweeper stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one sweep if the lock, when configured, can be taken. It
// reports whether the sweep ran.
func (s *Sweeper) SweepOnce(ctx context.Context) bool {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			s.logger.Warn("dispatch lock unavailable, skipping sweep", "error", err)
			return false
		}
		if !ok {
			s.logger.Debug("dispatch sweep held by another replica")
			return false
		}
		defer func() {
			// ctx may already be cancelled at shutdown.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.lock.Release(releaseCtx); err != nil {
				s.logger.Warn("dispatch lock release failed", "error", err)
			}
		}()
	}

	sum, err := s.processor.ProcessRecent(ctx)
	if err != nil {
		s.logger.Error("alert sweep failed", "error", err)
		return true
	}
	s.logger.Debug("alert sweep finished", "processed", sum.Processed, "generated", sum.Generated)
	return true
}
