package backoff

import (
	"context"
	"time"
)

// Sleep waits for the specified duration, respecting context cancellation.
// Returns nil if the sleep completed, or ctx.Err() if the context was
// cancelled first.
func Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepBackoff computes the delay for the given attempt under the policy and
// sleeps for it. Returns nil when the sleep completed, or ctx.Err().
func SleepBackoff(ctx context.Context, policy Policy, attempt int) error {
	return Sleep(ctx, Delay(policy, attempt))
}
