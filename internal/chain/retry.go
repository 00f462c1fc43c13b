package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Sentinel errors for retry logic.
var (
	ErrRetryable = &paycarterr.PaycartError{
		Code:     paycarterr.CodeRetryable,
		Message:  "retryable error",
		ExitCode: paycarterr.ExitGeneral,
	}

	ErrTimeout = &paycarterr.PaycartError{
		Code:     "TIMEOUT",
		Message:  "operation timed out",
		ExitCode: paycarterr.ExitGeneral,
	}

	// ErrRateLimited is shared with the backend client.
	ErrRateLimited = paycarterr.ErrRateLimited
)

// RetryConfig configures retry behavior for idempotent reads.
type RetryConfig struct {
	MaxAttempts int           // Attempts including the first one; values below 1 mean 1
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound for a single delay

	// OnRetry, when set, is called before sleeping with the failed attempt
	// number (1-based) and its error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns 3 attempts with delays of roughly 500ms and 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// NoRetry runs the operation exactly once.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

// Retry executes the operation with the default configuration.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig executes the operation, retrying only errors for which
// IsRetryable is true.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	attempts := max(cfg.MaxAttempts, 1)

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) || attempt == attempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoff(attempt-1, cfg.BaseDelay, cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	if attempts > 1 && IsRetryable(err) {
		return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
	}
	return result, err
}

// backoff doubles the base delay per attempt, caps it, and adds jitter in [d/2, d).
func backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay << attempt
	if maxDelay > 0 && (delay > maxDelay || delay <= 0) {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: jitter does not need cryptographic randomness
}

// IsRetryable returns true if the error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ParseRetryAfter parses a Retry-After header given in seconds.
// Returns 0 if the header is empty or not a number.
func ParseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WrapRetryable marks an error as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
