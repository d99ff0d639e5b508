package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_BasicTransitions(t *testing.T) {
	b := NewCircuitBreaker(2, 5*time.Second, 1)

	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if err := b.Allow(); err != nil {
		t.Fatalf("expected allow in closed state: %v", err)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after first failure, got %s", state)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after threshold failures, got %s", state)
	}

	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}

	now = now.Add(6 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if state := b.State(); state != CircuitStateHalfOpen {
		t.Fatalf("expected half-open state, got %s", state)
	}

	b.RecordSuccess()
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful half-open probe, got %s", state)
	}
}

func TestCircuitBreaker_ExecuteCountsOnlyClassifiedFailures(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute, 1)
	transient := errors.New("transient")
	badRequest := errors.New("bad request")
	isTransient := func(err error) bool { return errors.Is(err, transient) }

	err := b.Execute(func() error { return badRequest }, isTransient)
	if !errors.Is(err, badRequest) {
		t.Fatalf("expected bad request error to pass through, got %v", err)
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after non-transient error, got %s", state)
	}

	_ = b.Execute(func() error { return transient }, isTransient)
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after transient error, got %s", state)
	}

	called := false
	err = b.Execute(func() error {
		called = true
		return nil
	}, isTransient)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if called {
		t.Fatal("expected fn to be skipped while open")
	}
}

func TestCircuitBreaker_NilAllowsEverything(t *testing.T) {
	b := NewFromConfig(CircuitBreakerConfig{Enabled: false})
	if b != nil {
		t.Fatal("expected nil breaker when disabled")
	}

	calls := 0
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error {
			calls++
			return errors.New("boom")
		}, nil)
	}
	if calls != 3 {
		t.Fatalf("expected every call to run, got %d", calls)
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed state for nil breaker, got %s", state)
	}
}

func TestNewFromConfig_DisabledAndDefaults(t *testing.T) {
	if b := NewFromConfig(CircuitBreakerConfig{}); b != nil {
		t.Fatalf("expected nil breaker for zero config")
	}

	b := NewFromConfig(CircuitBreakerConfig{Enabled: true})
	if b == nil {
		t.Fatalf("expected breaker when enabled")
	}
	if b.failureThreshold != defaultFailureThreshold || b.openTimeout != defaultOpenTimeout || b.halfOpenMaxReq != defaultHalfOpenMaxReq {
		t.Fatalf("unexpected defaults: threshold=%d open=%s half=%d", b.failureThreshold, b.openTimeout, b.halfOpenMaxReq)
	}
}
