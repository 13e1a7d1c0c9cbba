package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the limiter sleeps.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
	mu    sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst then one token per second", func(t *testing.T) {
		clock := newFakeClock()
		rl := NewRateLimiter(5, 1, WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			wait, err := rl.Acquire(ctx)
			require.NoError(t, err)
			assert.Zero(t, wait, "acquire %d should not wait", i+1)
		}

		wait, err := rl.Acquire(ctx)
		require.NoError(t, err)
		assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.001)

		stats := rl.Stats()
		assert.Equal(t, int64(6), stats.TotalRequests)
		assert.Equal(t, int64(1), stats.TotalWaits)
		assert.Equal(t, time.Second, stats.TotalWaitTime)
	})

	t.Run("partial refill shortens the wait", func(t *testing.T) {
		clock := newFakeClock()
		rl := NewRateLimiter(1, 2, WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		_, err := rl.Acquire(ctx)
		require.NoError(t, err)

		clock.Advance(250 * time.Millisecond) // half a token at 2/s
		wait, err := rl.Acquire(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, wait.Seconds(), 0.001)
	})

	t.Run("tokens stay within bounds", func(t *testing.T) {
		clock := newFakeClock()
		rl := NewRateLimiter(3, 10, WithClock(clock.Now, clock.Sleep))

		clock.Advance(time.Hour)
		state := rl.State()
		assert.Equal(t, 3.0, state.Tokens)

		for i := 0; i < 10; i++ {
			_, err := rl.Acquire(context.Background())
			require.NoError(t, err)
			state = rl.State()
			assert.GreaterOrEqual(t, state.Tokens, 0.0)
			assert.LessOrEqual(t, state.Tokens, state.Capacity)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(1, 0.001) // one token per ~17 minutes

		_, err := rl.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() {
			_, err := rl.Acquire(ctx)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case err = <-done:
			require.Error(t, err)
			assert.Contains(t, err.Error(), "rate limiter canceled")
		case <-time.After(5 * time.Second):
			t.Fatal("canceled acquire did not return")
		}
	})

	t.Run("real clock wait", func(t *testing.T) {
		rl := NewRateLimiter(1, 20) // one token every 50ms
		ctx := context.Background()

		_, err := rl.Acquire(ctx)
		require.NoError(t, err)

		start := time.Now()
		_, err = rl.Acquire(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("tryAcquire", func(t *testing.T) {
		clock := newFakeClock()
		rl := NewRateLimiter(5, 1, WithClock(clock.Now, clock.Sleep))

		for i := 0; i < 5; i++ {
			assert.True(t, rl.TryAcquire(), "Expected tryAcquire to succeed for attempt %d", i+1)
		}
		assert.False(t, rl.TryAcquire(), "Expected tryAcquire to fail after tokens exhausted")

		clock.Advance(time.Second)
		assert.True(t, rl.TryAcquire())
		assert.False(t, rl.TryAcquire())
	})

	t.Run("tryAcquire yields to a waiting caller", func(t *testing.T) {
		clock := newFakeClock()
		sleeping := make(chan struct{})
		release := make(chan struct{})
		rl := NewRateLimiter(1, 1, WithClock(clock.Now, func(ctx context.Context, d time.Duration) error {
			close(sleeping)
			<-release
			return clock.Sleep(ctx, d)
		}))
		require.True(t, rl.TryAcquire())

		done := make(chan error, 1)
		go func() {
			_, err := rl.Acquire(context.Background())
			done <- err
		}()
		<-sleeping
		clock.Advance(time.Second)
		assert.False(t, rl.TryAcquire(), "the refilled token belongs to the waiting caller")

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("per minute defaults", func(t *testing.T) {
		rl := NewRateLimiterPerMinute(0, 0)
		state := rl.State()
		assert.Equal(t, 1.0, state.Capacity)
		assert.InDelta(t, 1.0, state.RefillRatePerSecond, 0.0001)
	})

	t.Run("concurrent access", func(t *testing.T) {
		rl := NewRateLimiter(100, 1000)
		ctx := context.Background()

		var wg sync.WaitGroup
		var mu sync.Mutex
		acquired := 0

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					if _, err := rl.Acquire(ctx); err == nil {
						mu.Lock()
						acquired++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 100, acquired)
		assert.Equal(t, int64(100), rl.Stats().TotalRequests)
	})
}
