package resilience

import (
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, fastRetryConfig(), nil)

	if err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	}, fastRetryConfig(), IsRetryableNetworkError)

	if err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("connection refused")
	err := Retry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig(), IsRetryableNetworkError)

	if err != wantErr {
		t.Errorf("Expected last error to be returned, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("invalid request body")
	err := Retry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig(), IsRetryableNetworkError)

	if err != wantErr {
		t.Errorf("Expected the error to be returned, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetry_NilConfigUsesDefaults(t *testing.T) {
	if err := Retry(func() error { return nil }, nil, nil); err != nil {
		t.Errorf("Retry() with nil config failed: %v", err)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("UNAVAILABLE: transport is closing"), true},
		{errors.New("invalid api key"), false},
		{errors.New("404 not found"), false},
	}

	for _, tt := range tests {
		if got := IsRetryableNetworkError(tt.err); got != tt.want {
			t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
