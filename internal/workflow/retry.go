package workflow

import (
	"math"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/services"
)

// RetryPolicy bounds redelivery of failed jobs.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// NewRetryPolicy reads the policy from workflow configuration.
func NewRetryPolicy(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Workflow.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		Multiplier:  cfg.Workflow.RetryMultiplier,
	}
}

// Decide returns the verdict for a job that failed with err on its
// attempts-th delivery. A nil err never retries.
func (p RetryPolicy) Decide(err error, attempts int) jobs.Decision {
	if err == nil || !services.Retryable(err) {
		return jobs.Decision{}
	}
	if attempts >= p.MaxAttempts {
		return jobs.Decision{}
	}
	return jobs.Decision{Retry: true, Delay: p.Delay(attempts)}
}

// Delay is base * multiplier^(attempts-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	exp := max(attempts-1, 0)
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(exp))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
