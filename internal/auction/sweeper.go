package auction

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically closes auctions whose deadline has passed. Only
// the leader runs it; a sweep racing a manual close is safe because
// archival settles each auction at most once.
type Sweeper struct {
	manager  *Manager
	logger   *slog.Logger
	interval time.Duration
}

// NewSweeper returns a Sweeper driving the given Manager.
func NewSweeper(manager *Manager, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	outcomes, err := s.manager.CloseExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", slog.Any("error", err))
		return
	}
	if len(outcomes) > 0 {
		s.logger.InfoContext(ctx, "expiry sweep closed auctions", slog.Int("count", len(outcomes)))
	}
}
