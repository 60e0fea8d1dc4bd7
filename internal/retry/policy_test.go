package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"zapp/internal/driver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	var calls int32
	err := Do(context.Background(), Policy{MaxElapsed: time.Second, Wait: time.Millisecond, RetryOn: driver.Transient}, func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &driver.Error{Kind: driver.StaleElement}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestDo_NonRetryableErrorPropagatesImmediately(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	err := Do(context.Background(), Transient(time.Second), func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_WallClockBudgetIsNeverExceeded(t *testing.T) {
	budget := 200 * time.Millisecond
	p := Policy{MaxElapsed: budget, Wait: 15 * time.Millisecond, RetryOn: driver.Transient}

	var calls int
	start := time.Now()
	err := Do(context.Background(), p, func() error {
		calls++
		return &driver.Error{Kind: driver.ClickIntercepted}
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, driver.Transient(err), "last transient error is returned")
	assert.Greater(t, calls, 2)
	assert.LessOrEqual(t, elapsed, budget+50*time.Millisecond)
}

func TestDo_AttemptLimit(t *testing.T) {
	var calls int
	err := Do(context.Background(), Attempts(3, 0), func() error {
		calls++
		return errors.New("still failing")
	})

	assert.EqualError(t, err, "still failing")
	assert.Equal(t, 3, calls)
}

func TestAttempts_ClampsToOne(t *testing.T) {
	p := Attempts(0, time.Second)
	assert.Equal(t, 1, p.MaxAttempts)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	v, err := DoValue(context.Background(), Attempts(2, 0), func() (string, error) {
		return "found", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "found", v)
}

func TestDo_NotifyCalledBeforeEachWait(t *testing.T) {
	var notified int
	p := Attempts(3, time.Millisecond)
	p.Notify = func(err error, next time.Duration) { notified++ }

	_ = Do(context.Background(), p, func() error { return errors.New("x") })
	assert.Equal(t, 2, notified)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := Do(ctx, Policy{MaxElapsed: time.Minute, Wait: time.Millisecond}, func() error {
		calls++
		return errors.New("x")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Retryable(t *testing.T) {
	assert.False(t, Policy{}.Retryable(nil))
	assert.True(t, Policy{}.Retryable(errors.New("any")))
	assert.False(t, Transient(time.Second).Retryable(errors.New("any")))
	assert.True(t, Transient(time.Second).Retryable(&driver.Error{Kind: driver.NoSuchContext}))
}
