package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstThenDenies(t *testing.T) {
	rl := NewRateLimiter(0, 3) // no refill, so the burst is the whole budget
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "call %d should be within the burst", i)
	}
	assert.False(t, rl.Allow(), "burst exhausted, fourth call must be denied")
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(100, 1) // one token every 10ms
	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	time.Sleep(25 * time.Millisecond)
	assert.True(t, rl.Allow(), "bucket should have refilled")
}

func TestRateLimiterRefillCapsAtBurst(t *testing.T) {
	rl := NewRateLimiter(1000, 2)
	time.Sleep(20 * time.Millisecond) // far more refill than the bucket holds

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "refill must never exceed the burst size")
}

func TestRegistryIsolatesBucketsPerKey(t *testing.T) {
	reg := NewRateLimiterRegistry(0, 1)

	assert.True(t, reg.Get("todo-create").Allow())
	assert.False(t, reg.Get("todo-create").Allow())
	assert.True(t, reg.Get("todo-delete").Allow(), "a different key gets its own bucket")
}

func TestRegistryReturnsSameLimiterForSameKey(t *testing.T) {
	reg := NewRateLimiterRegistry(5, 10)
	assert.Same(t, reg.Get("u1"), reg.Get("u1"))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	sentinel := errors.New("permanent")
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		RetryableErr: func(err error) bool { return false },
	}, func(attempt int) error {
		attempts++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts, "a non-retryable error must end the loop immediately")
}

func TestRetryExhaustsAttemptsAndWrapsLastError(t *testing.T) {
	sentinel := errors.New("still broken")
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, sentinel, "the wrapped error must stay reachable through errors.Is/As")
}

func TestRetryPassesAttemptIndex(t *testing.T) {
	var seen []int
	_ = Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(attempt int) error {
		seen = append(seen, attempt)
		return errors.New("again")
	})
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestRetryObservesContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, RetryConfig{MaxAttempts: 10, InitialDelay: 100 * time.Millisecond}, func(attempt int) error {
		attempts++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "cancellation during backoff must not start another attempt")
}

func TestRetryDefaultsApplyOnZeroConfig(t *testing.T) {
	attempts := 0
	start := time.Now()
	err := Retry(context.Background(), RetryConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "MaxAttempts should default to 3")
	assert.Less(t, time.Since(start), time.Second)
}
