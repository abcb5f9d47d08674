package inventory

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper returns stock held by checkouts that never finished, for example
// because the process died between reserve and commit.
type Sweeper struct {
	ledger   Ledger
	ttl      time.Duration
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewSweeper(ledger Ledger, ttl, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		ttl:      ttl,
		interval: interval,
		log:      log.With("component", "reservation-sweeper"),
		now:      time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "ttl", s.ttl, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce releases HELD reservations older than the TTL.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.ledger.ReleaseStale(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("released abandoned reservations", "count", n)
	}
	return n, nil
}
