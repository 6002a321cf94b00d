package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Scheduler runs a cycle immediately and then once per Interval. Cycles never
// overlap: a tick that arrives while a cycle runs is dropped.
type Scheduler struct {
	Interval time.Duration
	// CycleTimeout bounds each cycle. Zero means no bound.
	CycleTimeout time.Duration
	Run          func(ctx context.Context) Outcome
	Logger       *slog.Logger
}

// Start blocks until ctx is cancelled. A cycle in flight when ctx is
// cancelled runs to completion under its own context before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Interval <= 0 {
		return fmt.Errorf("invalid interval %s", s.Interval)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	logger.Info("Scheduler started", "interval", s.Interval)
	for {
		if ctx.Err() != nil {
			logger.Info("Scheduler stopped")
			return nil
		}
		s.cycle(ctx, logger)

		// drop a tick that fired during the cycle
		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) cycle(parent context.Context, logger *slog.Logger) {
	ctx := context.WithoutCancel(parent)
	if s.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CycleTimeout)
		defer cancel()
	}

	outcome := s.Run(ctx)
	logger.Debug("Cycle finished", "outcome", outcome.String(), "run_id", outcome.RunID)
}
