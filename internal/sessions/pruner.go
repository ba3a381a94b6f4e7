package sessions

import (
	"context"
	"time"
)

// StartSweeper launches a background loop that prunes idle sessions at
// the given interval. It returns immediately; the loop stops when ctx
// is cancelled. Non-positive arguments fall back to the defaults.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultSessionTTL
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Prune(ctx, maxAge)
			}
		}
	}()
}
