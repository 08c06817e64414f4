package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediaworker/internal/services"
	"mediaworker/internal/testsupport"
)

func TestRetryPolicyDecide(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 15 * time.Second, Multiplier: 2}
	fetchErr := services.Wrap(services.ErrFetch, "fetch", "download", "connection refused", nil)
	decodeErr := services.Wrap(services.ErrDecode, "decode", "probe", "moov atom not found", nil)

	tests := []struct {
		name     string
		err      error
		attempts int
		retry    bool
		delay    time.Duration
	}{
		{"success", nil, 1, false, 0},
		{"fetch first attempt", fetchErr, 1, true, 10 * time.Second},
		{"fetch second attempt capped", fetchErr, 2, true, 15 * time.Second},
		{"fetch at limit", fetchErr, 3, false, 0},
		{"decode never retries", decodeErr, 1, false, 0},
		{"untagged is internal", errors.New("boom"), 1, true, 10 * time.Second},
		{"bare deadline is timeout", context.DeadlineExceeded, 2, true, 15 * time.Second},
		{"quality", services.Wrap(services.ErrQuality, "vision", "", "too many failed frames", nil), 1, false, 0},
		{"configuration", services.Wrap(services.ErrConfiguration, "", "", "bad", nil), 1, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Decide(tt.err, tt.attempts)
			if got.Retry != tt.retry || got.Delay != tt.delay {
				t.Fatalf("Decide = %+v, want retry=%v delay=%s", got, tt.retry, tt.delay)
			}
		})
	}
}

func TestRetryPolicyDelayShapes(t *testing.T) {
	fixed := RetryPolicy{BaseDelay: 5 * time.Second, Multiplier: 1}
	for attempts := 1; attempts <= 4; attempts++ {
		if got := fixed.Delay(attempts); got != 5*time.Second {
			t.Fatalf("fixed delay for attempt %d = %s", attempts, got)
		}
	}
	exp := RetryPolicy{BaseDelay: time.Second, Multiplier: 3}
	if got := exp.Delay(3); got != 9*time.Second {
		t.Fatalf("exponential delay = %s, want 9s", got)
	}
	if got := (RetryPolicy{}).Delay(2); got != 0 {
		t.Fatalf("zero base delay = %s", got)
	}
}

func TestRetryBoundNeverLoops(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
	err := services.Wrap(services.ErrInference, "transcribe", "", "cuda out of memory", nil)
	retries := 0
	for attempts := 1; ; attempts++ {
		if !policy.Decide(err, attempts).Retry {
			break
		}
		retries++
		if attempts > 10 {
			t.Fatal("policy retried past its bound")
		}
	}
	if retries != 2 {
		t.Fatalf("expected 2 redeliveries before dead-lettering, got %d", retries)
	}
}

func TestNewRetryPolicyFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MaxAttempts = 5
	cfg.Workflow.RetryBaseDelay = 7
	cfg.Workflow.RetryMaxDelay = 60
	cfg.Workflow.RetryMultiplier = 1.5
	policy := NewRetryPolicy(cfg)
	if policy.MaxAttempts != 5 || policy.BaseDelay != 7*time.Second || policy.MaxDelay != time.Minute || policy.Multiplier != 1.5 {
		t.Fatalf("unexpected policy %+v", policy)
	}
}
