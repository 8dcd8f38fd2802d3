package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrMaxAttempts = errors.New("max attempts reached")

// Retry calls fn every interval until it reports done, returns an error or
// ctx is done.
func Retry(
	ctx context.Context, interval time.Duration, fn func(ctx context.Context) (bool, error),
) error {
	return RetryWithBackoff(ctx, Backoff{Interval: interval}, fn)
}

// Backoff configures RetryWithBackoff. Each wait is multiplied by Factor
// (when above 1) up to MaxInterval. Zero MaxAttempts means no limit.
type Backoff struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Factor      float64
	MaxAttempts int
}

func RetryWithBackoff(
	ctx context.Context, b Backoff, fn func(ctx context.Context) (bool, error),
) error {
	wait := b.Interval
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("timed out")
			}
			return err
		}

		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("%w (%d)", ErrMaxAttempts, attempt)
		}

		select {
		case <-ctx.Done():
			continue
		case <-time.After(wait):
		}

		if b.Factor > 1 {
			wait = time.Duration(float64(wait) * b.Factor)
			if b.MaxInterval > 0 && wait > b.MaxInterval {
				wait = b.MaxInterval
			}
		}
	}
}
