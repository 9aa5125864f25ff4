package memory

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// StartExpiry runs periodic session expiry until ctx is cancelled. It is
// meant to be launched as a goroutine next to the manager.
func StartExpiry(ctx context.Context, logger *log.Logger, interval time.Duration, manager *Manager) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := manager.ExpireSessions(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("session expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("session expiry sweep removed idle sessions", "count", n)
			}
		}
	}
}
