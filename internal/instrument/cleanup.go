package instrument

import (
	"context"
	"log"
	"time"

	"volunteer-backend/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays.
func CleanupOldEvents(ctx context.Context, q store.Querier, retentionDays int) (int64, error) {
	return store.Exec(ctx, q,
		"DELETE FROM _events WHERE created_at < NOW() - make_interval(days => $1)", retentionDays)
}

// StartCleanup runs CleanupOldEvents every interval until ctx is done.
func StartCleanup(ctx context.Context, q store.Querier, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := CleanupOldEvents(ctx, q, retentionDays)
				if err != nil {
					log.Printf("ERROR: event cleanup: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("Event cleanup: deleted %d old events", n)
				}
			}
		}
	}()
}
