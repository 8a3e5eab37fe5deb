package services

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
)

// RetryPolicy controls the exponential backoff used for every upstream call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// jitter returns a value in [0, BaseDelay). Replaced in tests.
	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error
}

// DefaultRetryPolicy returns five attempts starting at one second, growing by 1.5.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 1.5}
}

// RetryPolicyFromConfig builds the policy used by the API client.
func RetryPolicyFromConfig(cfg config.APIConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay.Std()
	}
	return p
}

// Delay returns the wait before the attempt following attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1.5
	}
	backoff := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	return backoff + p.jitterFor(p.BaseDelay)
}

func (p RetryPolicy) jitterFor(base time.Duration) time.Duration {
	if p.jitter != nil {
		return p.jitter(base)
	}
	if base <= 0 {
		return 0
	}
	return rand.N(base)
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// Retry runs fn until it succeeds, returns a permanent error, or MaxAttempts is
// reached. The last error is returned unchanged so callers can inspect it.
func Retry[T any](ctx context.Context, p RetryPolicy, label string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if errors.Is(err, ErrMissingCredential) || ctx.Err() != nil {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		metrics.APIRetriesTotal.WithLabelValues(retryReason(err)).Inc()
		delay := p.Delay(attempt)
		log.Printf("Retry: %s failed (attempt %d/%d): %v - retrying in %v", label, attempt, attempts, err, delay.Round(time.Millisecond))
		if err := p.wait(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func retryReason(err error) string {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &httpErr):
		return "http"
	default:
		return "network"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
