// Package retry provides a generic exponential-backoff-with-full-jitter
// retry loop for any fallible step, not just HTTP calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ignite/rangemigrate/internal/pkg/logger"
)

// Policy configures the backoff schedule. Zero values fall back to the
// same defaults the migration engine uses everywhere: 1s base, 30s cap.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy matches the reference engine's retry configuration.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Classifier decides whether an error returned by a step is worth
// retrying. Callers typically pass domain.Kind.Retriable via a small
// adapter, so this package stays free of any domain-specific import.
type Classifier func(err error) bool

// Do runs step, retrying on errors that classify as retriable, using
// exponential backoff with full jitter: random(0, min(maxDelay,
// baseDelay * 2^(attempt-1))), raised to 100ms when it comes out lower
// (even where maxDelay is below 100ms). It stops retrying when the context is
// done, the classifier returns false, or MaxRetries is exhausted, and
// returns the last error encountered.
func Do(ctx context.Context, policy Policy, retriable Classifier, component string, step func(ctx context.Context) error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		if attempt > 0 {
			delay := calculateDelay(policy, attempt)
			logger.Warn("retrying step", "component", component, "attempt", attempt, "max_retries", policy.MaxRetries, "delay", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return lastErr
				}
				return ctx.Err()
			}
		}

		err := step(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if retriable != nil && !retriable(err) {
			return err
		}
	}

	return lastErr
}

// calculateDelay returns the backoff duration for the given retry attempt.
func calculateDelay(p Policy, attempt int) time.Duration {
	expDelay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(p.MaxDelay) {
		expDelay = float64(p.MaxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}
