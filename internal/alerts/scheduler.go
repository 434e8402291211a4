package alerts

import (
	"context"
	"log"
	"time"
)

// StartScheduler runs CheckAll once immediately, then on a fixed
// interval until ctx is cancelled. It is a second caller of the same
// idempotent check that the cron endpoint exposes; no mutual exclusion
// is attempted, the persisted flags keep overlapping ticks harmless.
func (s *Service) StartScheduler(ctx context.Context) {
	interval := time.Duration(s.Config.AlertIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.CheckAll()

		for {
			select {
			case <-ctx.Done():
				log.Println("Alert scheduler stopped")
				return
			case <-ticker.C:
				s.CheckAll()
			}
		}
	}()

	log.Printf("Alert scheduler initialized (every %s)", interval)
}
