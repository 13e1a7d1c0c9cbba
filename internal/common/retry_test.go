package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/shopping-helper/internal/service"
)

func TestWithRetry(t *testing.T) {
	opts := service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("status 503")
		}, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("non-retryable returns immediately", func(t *testing.T) {
		calls := 0
		authErr := errors.New("status 401 unauthorized")
		err := WithRetry(context.Background(), func() error {
			calls++
			return authErr
		}, opts)
		assert.Equal(t, authErr, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			cancel()
			return errors.New("eof")
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("backoff doubles", func(t *testing.T) {
		var stamps []time.Time
		_ = WithRetry(context.Background(), func() error {
			stamps = append(stamps, time.Now())
			return errors.New("timeout")
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: 20 * time.Millisecond, Multiplier: 2})
		require.Len(t, stamps, 3)
		assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
		assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
	})

	t.Run("rate limit waits the longest step", func(t *testing.T) {
		var stamps []time.Time
		err := WithRetry(context.Background(), func() error {
			stamps = append(stamps, time.Now())
			if len(stamps) == 1 {
				return errors.New("status 429: too many requests")
			}
			return nil
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: 15 * time.Millisecond, Multiplier: 2})
		require.NoError(t, err)
		require.Len(t, stamps, 2)
		assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 30*time.Millisecond)
	})

	t.Run("explicit override", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("status 503"), Retryable: false}
		}, opts)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 1, calls)
	})
}

func TestLongestDelay(t *testing.T) {
	assert.Equal(t, 40*time.Millisecond, longestDelay(service.RetryOptions{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, Multiplier: 4, MaxDelay: time.Second}))
	assert.Equal(t, 50*time.Millisecond, longestDelay(service.RetryOptions{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}))
	assert.Equal(t, 10*time.Millisecond, longestDelay(service.RetryOptions{MaxAttempts: 1, InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}))
}

func TestDefaultRetryOptions(t *testing.T) {
	opts := service.DefaultRetryOptions(time.Second)
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, time.Second, opts.InitialDelay)
	assert.Equal(t, 2.0, opts.Multiplier)
}
