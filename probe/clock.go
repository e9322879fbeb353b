package probe

import (
	"context"
	"time"
)

// Clock abstracts the blocking waits between cycles, snapshots, and
// command settle periods so tests can drive campaigns without real
// delays. Sleep returns early with the context error on cancellation.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

type realClock struct{}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
