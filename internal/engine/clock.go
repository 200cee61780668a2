package engine

import (
	"context"
	"time"
)

// sleepContext waits for d or until the context is done, whichever comes
// first. Waits suspend only the calling goroutine, never a shared scheduler.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
