package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token bucket bounding calls to one throttled dependency.
// Construct one per dependency and pass it to every caller that shares the quota.
type RateLimiter struct {
	lastRefill    time.Time
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	turn          chan struct{}
	tokens        float64
	capacity      float64
	refillRate    float64 // tokens per second
	totalRequests int64
	totalWaits    int64
	totalWaitTime time.Duration
	mu            sync.Mutex
}

// LimiterOption customizes a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithClock replaces the wall clock and sleep function, for deterministic tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(rl *RateLimiter) {
		rl.now = now
		rl.sleep = sleep
	}
}

// NewRateLimiter creates a full bucket holding capacity tokens, refilled at
// ratePerSecond tokens per second.
func NewRateLimiter(capacity int, ratePerSecond float64, opts ...LimiterOption) *RateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1 // Default to one request per second
	}

	rl := &RateLimiter{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: ratePerSecond,
		now:        time.Now,
		sleep:      sleepContext,
		turn:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.lastRefill = rl.now()

	return rl
}

// NewRateLimiterPerMinute creates a limiter allowing requestsPerMinute calls,
// with a burst of capacity.
func NewRateLimiterPerMinute(requestsPerMinute, capacity int, opts ...LimiterOption) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return NewRateLimiter(capacity, float64(requestsPerMinute)/60.0, opts...)
}

// Acquire takes one token, blocking when the bucket is empty. It returns how
// long the caller waited. The only failure is cancellation of ctx.
func (rl *RateLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	// Callers take turns so each computes its wait after the previous one consumed.
	select {
	case rl.turn <- struct{}{}:
		defer func() { <-rl.turn }()
	case <-ctx.Done():
		return 0, fmt.Errorf("rate limiter canceled: %w", ctx.Err())
	}

	rl.mu.Lock()
	rl.refillLocked()
	rl.totalRequests++
	if rl.tokens >= 1 {
		rl.tokens--
		rl.mu.Unlock()
		return 0, nil
	}
	wait := time.Duration((1 - rl.tokens) / rl.refillRate * float64(time.Second))
	rl.totalWaits++
	rl.mu.Unlock()

	if err := rl.sleep(ctx, wait); err != nil {
		return 0, fmt.Errorf("rate limiter canceled: %w", err)
	}

	rl.mu.Lock()
	rl.tokens = 0
	rl.lastRefill = rl.now()
	rl.totalWaitTime += wait
	rl.mu.Unlock()

	return wait, nil
}

// TryAcquire takes a token only if one is immediately available and no
// Acquire caller is waiting for the next one.
func (rl *RateLimiter) TryAcquire() bool {
	select {
	case rl.turn <- struct{}{}:
		defer func() { <-rl.turn }()
	default:
		return false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens >= 1 {
		rl.tokens--
		rl.totalRequests++
		return true
	}
	return false
}

// refillLocked adds tokens for the time elapsed since the last refill.
func (rl *RateLimiter) refillLocked() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

// LimiterStats reports limiter activity for observability.
type LimiterStats struct {
	TotalRequests int64
	TotalWaits    int64
	TotalWaitTime time.Duration
}

// Stats returns the request and wait counters.
func (rl *RateLimiter) Stats() LimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return LimiterStats{
		TotalRequests: rl.totalRequests,
		TotalWaits:    rl.totalWaits,
		TotalWaitTime: rl.totalWaitTime,
	}
}

// RateLimiterState is a snapshot of the bucket.
type RateLimiterState struct {
	LastRefill          time.Time
	Tokens              float64
	Capacity            float64
	RefillRatePerSecond float64
}

// State returns the current bucket contents after refilling.
func (rl *RateLimiter) State() RateLimiterState {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return RateLimiterState{
		LastRefill:          rl.lastRefill,
		Tokens:              rl.tokens,
		Capacity:            rl.capacity,
		RefillRatePerSecond: rl.refillRate,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
