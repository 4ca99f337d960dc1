package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/queuedesk/internal/logger"
)

type tokenSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes refresh tokens nobody can use anymore
type Sweeper struct {
	interval time.Duration
	tokens   tokenSweeper
	logger   logger.Logger
}

// Interval <= 0 disables sweeping: Run returns closed channel immediately
func New(interval time.Duration, tokens tokenSweeper, l logger.Logger) *Sweeper {
	return &Sweeper{interval: interval, tokens: tokens, logger: l}
}

// Run sweep loop until ctx is done
// Returned channel is closed when loop stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	if s.interval <= 0 {
		s.logger.Info("Refresh token sweeper disabled")
		close(stopped)
		return stopped
	}

	s.logger.Debug("Starting refresh token sweeper", "interval", s.interval)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				deleted, err := s.tokens.SweepExpired(ctx)
				if err != nil {
					s.logger.Error("Failed to sweep refresh tokens", "error", err)
					continue
				}
				if deleted > 0 {
					s.logger.Info("Refresh tokens swept", "deleted", deleted)
				}
			}
		}
	}()

	return stopped
}
