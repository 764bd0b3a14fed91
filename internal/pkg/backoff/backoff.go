// Package backoff provides exponential backoff with jitter and a bounded retry helper.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// JitterFactor is the maximum share of a delay added as random jitter.
const JitterFactor = 0.3

// DefaultMaxDelay caps delays computed by Retry.
const DefaultMaxDelay = 30 * time.Second

// ErrMaxAttemptsExceeded is returned by Retry when every attempt failed.
var ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

// Delay returns min(base * 2^attempt, maxDelay).
func Delay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}

	d := base
	for i := 0; i < attempt; i++ {
		// doubling past maxDelay (or overflowing) is pointless
		if d >= maxDelay || d > d<<1 {
			return maxDelay
		}
		d <<= 1
	}

	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Jitter adds up to JitterFactor*d of uniform random delay to d.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*JitterFactor*float64(d))
}

// DelayWithJitter is Jitter(Delay(attempt, base, maxDelay)).
func DelayWithJitter(attempt int, base, maxDelay time.Duration) time.Duration {
	return Jitter(Delay(attempt, base, maxDelay))
}

// Retry calls op until it succeeds, returns a non-retryable error, ctx is done
// or maxAttempts calls have failed. Waits between attempts grow exponentially
// from baseDelay and are capped at DefaultMaxDelay.
func Retry(ctx context.Context, op func(ctx context.Context) error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt+1 >= maxAttempts {
			break
		}

		wait := DelayWithJitter(attempt, baseDelay, DefaultMaxDelay)
		slog.Debug("operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"backoff", wait,
			"error", err,
		)
		if !Sleep(ctx, wait) {
			return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, maxAttempts, lastErr)
}

// IsRetryable reports whether err should be retried. Errors exposing an
// IsRetryable method decide for themselves; anything else is retried.
func IsRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// Sleep waits for d or ctx cancellation. Returns false if cancelled.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
