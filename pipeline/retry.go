package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrRetriesExhausted is returned when a [RetryPolicy] does not allow more
// attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// DefaultReceiveRetry is the policy applied to stream processor failures. It
// retries forever every minute.
var DefaultReceiveRetry = RetryPolicy{Interval: time.Minute}

// RetryPolicy is a fixed delay retry policy. A zero MaxAttempts means that
// the number of retries is unbounded.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Wait blocks until the retry number attempt, starting at 1, can be
// performed. It returns [ErrRetriesExhausted] if the policy does not allow
// it, or the context error if ctx is done while waiting.
func (r RetryPolicy) Wait(ctx context.Context, attempt int) error {
	if r.MaxAttempts > 0 && attempt > r.MaxAttempts {
		return ErrRetriesExhausted
	}

	if r.Interval <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(r.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
