// Package resilience provides retry, circuit breaker, and reconnection
// helpers used around the external engine adapters.
package resilience

import (
	"strings"
	"time"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxAttempts       int           // Maximum number of attempts
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
	Jitter            bool          // Whether to add jitter to backoff
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// IsRetryableError decides whether an error is worth retrying.
type IsRetryableError func(error) bool

// Retry executes fn with exponential backoff until it succeeds, the error is
// non-retryable, or attempts are exhausted.
func Retry(fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}

		// No sleep after the last attempt.
		if attempt < config.MaxAttempts-1 {
			sleep := backoff
			if config.Jitter {
				sleep += time.Duration(float64(sleep) * 0.125)
			}
			if sleep > config.MaxBackoff {
				sleep = config.MaxBackoff
			}
			time.Sleep(sleep)

			backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	return lastErr
}

// IsRetryableNetworkError reports whether an error looks like a transient
// network failure.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"transport is closing",
		"unavailable",
		"network is unreachable",
		"no route to host",
		"deadline exceeded",
		"timeout",
		"i/o timeout",
		"resource exhausted",
		"too many connections",
		"rate limit",
	} {
		if strings.Contains(errStr, fragment) {
			return true
		}
	}

	return false
}
