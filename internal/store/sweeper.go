package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSweeper periodically drops past-expiry records from the store
// until ctx is cancelled.
func RunSweeper(ctx context.Context, s *Store, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Expiry sweeper stopped")
			return
		case now := <-ticker.C:
			s.SweepExpired(now.UTC())
		}
	}
}
