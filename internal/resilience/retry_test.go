package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, DefaultRetryConfig(), nil)

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	config := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, config, nil)

	if err != nil {
		t.Errorf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	config := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	failErr := errors.New("persistent")

	err := Retry(func() error {
		calls++
		return failErr
	}, config, nil)

	if !errors.Is(err, failErr) {
		t.Errorf("Expected persistent error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsEarly(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")

	err := Retry(func() error {
		calls++
		return fatal
	}, DefaultRetryConfig(), func(err error) bool {
		return false // nothing is retryable
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("request timeout"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"not found", errors.New("resource not found"), false},
		{"bad request", errors.New("status 400"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableNetworkError(tt.err); got != tt.retryable {
				t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	backoff := CalculateBackoff(0, 100*time.Millisecond, 5*time.Second, 2.0)
	if backoff != 100*time.Millisecond {
		t.Errorf("Expected 100ms for attempt 0, got %v", backoff)
	}

	backoff = CalculateBackoff(2, 100*time.Millisecond, 5*time.Second, 2.0)
	if backoff != 400*time.Millisecond {
		t.Errorf("Expected 400ms for attempt 2, got %v", backoff)
	}

	// Capped at max
	backoff = CalculateBackoff(10, 100*time.Millisecond, 5*time.Second, 2.0)
	if backoff != 5*time.Second {
		t.Errorf("Expected cap at 5s, got %v", backoff)
	}
}

func TestRetryableError(t *testing.T) {
	base := errors.New("base")
	wrapped := NewRetryableError(base)

	if !IsRetryable(wrapped) {
		t.Error("Expected wrapped error to be retryable")
	}
	if IsRetryable(base) {
		t.Error("Expected bare error to not be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to unwrap to base")
	}
	if NewRetryableError(nil) != nil {
		t.Error("Expected nil for nil input")
	}
}

func TestRestart_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	config := &RestartConfig{
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Millisecond,
	}

	err := Restart(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("still down")
		}
		return nil
	}, config)

	if err != nil {
		t.Errorf("Expected restart to succeed, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestRestart_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Restart(ctx, func() error {
		return errors.New("down")
	}, DefaultRestartConfig())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRestart_Exhaustion(t *testing.T) {
	config := &RestartConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Millisecond,
	}

	err := Restart(context.Background(), func() error {
		return errors.New("down")
	}, config)

	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}
}
