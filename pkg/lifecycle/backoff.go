package lifecycle

import (
	"context"
	"time"
)

// FixedDelay paces reconnect attempts with a constant sleep.
type FixedDelay struct {
	d time.Duration
}

// NewFixedDelay creates a delay that always waits d.
func NewFixedDelay(d time.Duration) *FixedDelay {
	return &FixedDelay{d: d}
}

// Duration returns the configured delay.
func (f *FixedDelay) Duration() time.Duration {
	return f.d
}

// Wait sleeps for the delay or until ctx is done.
func (f *FixedDelay) Wait(ctx context.Context) error {
	if f.d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(f.d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
