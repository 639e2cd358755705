package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_Attempts(t *testing.T) {
	if got := (RetryPolicy{MaxRetries: 2}).Attempts(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if got := (RetryPolicy{}).Attempts(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if got := (RetryPolicy{MaxRetries: -1}).Attempts(); got != 1 {
		t.Fatalf("expected 1 attempt for negative retries, got %d", got)
	}
}

func TestRetryPolicy_BackoffDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, expected := range want {
		if got := policy.Backoff(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestRetryPolicy_BackoffAppliesJitterAfterCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		MaxDelay:  time.Second,
		Jitter:    func(d time.Duration) time.Duration { return d / 2 },
	}
	if got := policy.Backoff(4); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", got)
	}
}

func TestRetryPolicy_WaitUsesSleep(t *testing.T) {
	var slept []time.Duration
	policy := RetryPolicy{
		BaseDelay: 10 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	if err := policy.Wait(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := policy.Wait(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 2 || slept[0] != 10*time.Millisecond || slept[1] != 20*time.Millisecond {
		t.Fatalf("unexpected sleeps: %v", slept)
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := SleepWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
