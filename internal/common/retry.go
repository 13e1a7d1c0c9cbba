package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/allofdaniel/shopping-helper/internal/service"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// RetryableError overrides the retryable flag Classify would infer.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry runs operation until it succeeds, fails with an error that does
// not classify as retryable, or MaxAttempts is used up. The wait before
// attempt n+1 is InitialDelay×Multiplier^(n-1) capped at MaxDelay; rate-limit
// failures wait the longest step of that schedule straight away.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = retryDefaults(opts)
	delay := opts.InitialDelay

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		rec := Classify(err, ErrorContext{Operation: "retry"})
		if !rec.Retryable {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempt, err)
		}

		wait := delay
		if rec.Kind == KindRateLimit {
			wait = longestDelay(opts)
		}
		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"kind", rec.Kind,
			"delay", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(time.Duration(float64(delay)*opts.Multiplier), opts.MaxDelay)
	}
}

func retryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// longestDelay is the final backoff step of the schedule.
func longestDelay(opts service.RetryOptions) time.Duration {
	steps := float64(opts.MaxAttempts - 2)
	if steps < 0 {
		steps = 0
	}
	d := time.Duration(float64(opts.InitialDelay) * math.Pow(opts.Multiplier, steps))
	return min(d, opts.MaxDelay)
}
