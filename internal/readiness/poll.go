package readiness

import (
	"context"
	"errors"
	"time"
)

// ErrMaxAttempts is returned by Poll when validate never accepts a result.
var ErrMaxAttempts = errors.New("exceeded max attempts")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RealSleeper waits on the wall clock.
func RealSleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll calls fn until validate accepts its result or maxAttempts calls have
// been made, sleeping interval after every rejected attempt. An error from fn
// stops polling immediately.
func Poll[T any](ctx context.Context, fn func(context.Context) (T, error), validate func(T) bool, interval time.Duration, maxAttempts int, sleep Sleeper) (T, error) {
	var zero T
	if sleep == nil {
		sleep = RealSleeper
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if validate(result) {
			return result, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return zero, err
		}
	}
	return zero, ErrMaxAttempts
}
