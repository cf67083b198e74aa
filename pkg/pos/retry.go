package pos

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/errors"
)

// RetryPolicy defines retry behavior for page fetches with exponential
// backoff and jitter.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy builds a retry policy from reliability configuration
func NewRetryPolicy(cfg config.ReliabilityConfig) *RetryPolicy {
	multiplier := cfg.RetryMultiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}
	maxDelay := cfg.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &RetryPolicy{
		MaxAttempts:     cfg.RetryAttempts,
		InitialDelay:    cfg.RetryDelay,
		MaxDelay:        maxDelay,
		Multiplier:      multiplier,
		RandomizeFactor: 0.25,
	}
}

// Execute runs fn, retrying retryable errors up to MaxAttempts. Non-retryable
// errors surface immediately. onRetry, if non-nil, is invoked before each
// re-attempt.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == rp.MaxAttempts-1 {
			break
		}

		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		timer := time.NewTimer(rp.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}

	return errors.Wrap(lastErr, errors.ErrorTypeExtraction, "all retry attempts exhausted").
		WithDetail("attempts", rp.MaxAttempts)
}

// calculateDelay calculates the backoff delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		delay = delay - delta + rand.Float64()*2*delta
	}

	return time.Duration(delay)
}
