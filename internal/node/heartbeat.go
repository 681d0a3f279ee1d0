package node

import (
	"context"
	"time"
)

// DefaultHeartbeat is how often long-running nodes log a liveness line.
const DefaultHeartbeat = 10 * time.Second

// Heartbeat calls beat every interval until ctx is done. A non-positive interval disables it.
func Heartbeat(ctx context.Context, interval time.Duration, beat func()) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			beat()
		}
	}
}
