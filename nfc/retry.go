package nfc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retry defaults.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 1000 * time.Millisecond
	DefaultOpTimeout    = 5000 * time.Millisecond
)

// RetryPolicy bounds how often a failed attempt is repeated.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retried.
	Retryable func(err error) bool

	// OnRetry is called before each backoff delay with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

type raceOutcome[T any] struct {
	value T
	err   error
}

// Race runs fn against a deadline of d. Whichever finishes first decides the
// result: the timer is stopped when fn wins, and fn's context is cancelled and
// its late result dropped when the timer wins. A cancelled ctx ends the race
// with the context's cause.
func Race[T any](ctx context.Context, clock Clock, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		d = DefaultOpTimeout
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the goroutine never blocks when nobody is listening anymore.
	done := make(chan raceOutcome[T], 1)
	go func() {
		v, err := fn(opCtx)
		done <- raceOutcome[T]{value: v, err: err}
	}()

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case out := <-done:
		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}
		return out.value, out.err
	case <-timer.C():
		return zero, NewTimeoutError("race", nil)
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}

// Retry calls fn, each call bounded by Race with deadline d, until it
// succeeds, returns an error the policy does not retry, or MaxAttempts is
// reached. It returns the number of attempts made. Cancelling ctx stops the
// loop immediately, including during the backoff delay.
func Retry[T any](ctx context.Context, clock Clock, policy RetryPolicy, d time.Duration, logger zerolog.Logger, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := policy.maxAttempts()

	for attempt := 1; ; attempt++ {
		v, err := Race(ctx, clock, d, func(ctx context.Context) (T, error) {
			return fn(ctx, attempt)
		})
		if err == nil {
			return v, attempt, nil
		}
		if ctx.Err() != nil {
			return zero, attempt, context.Cause(ctx)
		}
		if attempt >= maxAttempts || !policy.retryable(err) {
			return zero, attempt, err
		}

		logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", maxAttempts).
			Dur("backoff", policy.Backoff).
			Msg("Attempt failed, retrying")
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}

		if policy.Backoff > 0 {
			select {
			case <-clock.After(policy.Backoff):
			case <-ctx.Done():
				return zero, attempt, context.Cause(ctx)
			}
		}
	}
}
