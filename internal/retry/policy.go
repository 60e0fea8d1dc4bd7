// Package retry provides the single retry policy shared by the wait engine
// and the API client: an error allowlist, a wall-clock budget measured from
// the first attempt, an optional attempt limit and a fixed delay.
package retry

import (
	"context"
	"errors"
	"time"

	"zapp/internal/driver"

	"github.com/cenkalti/backoff/v5"
)

// DefaultTransientWait is the pause between attempts of the transient
// driver-error retry.
const DefaultTransientWait = 250 * time.Millisecond

// Policy configures Do. A zero MaxElapsed or MaxAttempts disables that bound.
type Policy struct {
	MaxElapsed  time.Duration
	MaxAttempts int
	Wait        time.Duration
	// RetryOn selects retryable errors; nil retries every error.
	RetryOn func(error) bool
	// Notify is called with the failed attempt's error before each wait.
	Notify func(err error, next time.Duration)
}

// Transient is the wait engine policy: retry the whole operation on the
// known transient driver failures until budget has elapsed.
func Transient(budget time.Duration) Policy {
	return Policy{
		MaxElapsed: budget,
		Wait:       DefaultTransientWait,
		RetryOn:    driver.Transient,
	}
}

// Attempts is the API client policy shape: a fixed number of attempts with
// a fixed delay between them.
func Attempts(n int, wait time.Duration) Policy {
	if n < 1 {
		n = 1
	}
	return Policy{MaxAttempts: n, Wait: wait}
}

// Retryable reports whether the policy retries err.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	return p.RetryOn == nil || p.RetryOn(err)
}

// Do runs op under the policy.
func Do(ctx context.Context, p Policy, op func() error) error {
	_, err := DoValue(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoValue runs op under the policy and returns its last result. Errors that
// the policy does not retry are returned after the first attempt.
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	operation := func() (T, error) {
		v, err := op()
		if err != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Wait)),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
	}
	if p.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(p.MaxAttempts)))
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}

	v, err := backoff.Retry(ctx, operation, opts...)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return v, err
}
