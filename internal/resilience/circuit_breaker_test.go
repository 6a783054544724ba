package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend failure")

func failNTimes(n int) func() error {
	calls := 0
	return func() error {
		calls++
		if calls <= n {
			return errBackend
		}
		return nil
	}
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Second)

	for i := 0; i < 10; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Call() failed: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Second)

	for i := 0; i < 3; i++ {
		cb.Call(func() error { return errBackend })
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state after 3 failures, got %v", cb.GetState())
	}
	if err := cb.Call(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Second)

	cb.Call(func() error { return errBackend })
	cb.Call(func() error { return errBackend })
	cb.Call(func() error { return nil })
	cb.Call(func() error { return errBackend })
	cb.Call(func() error { return errBackend })

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state after interleaved success, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.Call(func() error { return errBackend })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state, got %v", cb.GetState())
	}

	time.Sleep(15 * time.Millisecond)

	// First probe is admitted and moves the breaker to half-open.
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected probe request to be admitted, got %v", err)
	}
	if state := cb.GetState(); state != StateHalfOpen {
		t.Errorf("Expected half-open state, got %v", state)
	}
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.Call(func() error { return errBackend })
	time.Sleep(15 * time.Millisecond)

	// Three consecutive successful probes close the circuit.
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Probe %d rejected: %v", i, err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state after successful probes, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.Call(func() error { return errBackend })
	time.Sleep(15 * time.Millisecond)

	cb.Call(func() error { return errBackend })

	if cb.GetState() != StateOpen {
		t.Errorf("Expected circuit to reopen on half-open failure, got %v", cb.GetState())
	}
	if err := cb.Call(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Hour)

	cb.Call(func() error { return errBackend })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state, got %v", cb.GetState())
	}

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state after reset, got %v", cb.GetState())
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("Expected call to succeed after reset, got %v", err)
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Hour)
	cb.Call(func() error { return errBackend })

	called := false
	cb.Call(func() error {
		called = true
		return nil
	})
	if called {
		t.Error("Expected open circuit to reject without invoking the function")
	}
}
