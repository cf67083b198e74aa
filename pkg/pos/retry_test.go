package pos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/errors"
	"github.com/ajitpratap0/posbridge/pkg/testutil"
)

func fastRetryPolicy(attempts int) *RetryPolicy {
	return NewRetryPolicy(config.ReliabilityConfig{
		RetryAttempts:   attempts,
		RetryDelay:      time.Millisecond,
		RetryMultiplier: 2.0,
		MaxRetryDelay:   10 * time.Millisecond,
	})
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	calls := 0
	err := fastRetryPolicy(3).Execute(ctx, func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeConnection, "flaky")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	calls := 0
	err := fastRetryPolicy(3).Execute(ctx, func() error {
		calls++
		return errors.New(errors.ErrorTypeAuth, "bad token")
	}, nil)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuth))
	assert.Equal(t, 1, calls, "auth errors must not be retried")
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	retries := 0
	err := fastRetryPolicy(3).Execute(ctx, func() error {
		return errors.New(errors.ErrorTypeRateLimit, "throttled")
	}, func(attempt int, err error) {
		retries++
	})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExtraction))
	assert.Equal(t, 2, retries, "three attempts mean two re-attempt callbacks")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := NewRetryPolicy(config.ReliabilityConfig{
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		RetryMultiplier: 2.0,
		MaxRetryDelay:   time.Second,
	})
	err := policy.Execute(ctx, func() error {
		return errors.New(errors.ErrorTypeConnection, "flaky")
	}, nil)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 10*time.Millisecond, policy.calculateDelay(0))
	assert.Equal(t, 20*time.Millisecond, policy.calculateDelay(1))
	assert.Equal(t, 40*time.Millisecond, policy.calculateDelay(2))
	assert.Equal(t, 40*time.Millisecond, policy.calculateDelay(3), "delay is capped")
}

func TestRateLimiterUnlimitedIsNil(t *testing.T) {
	var rl *RateLimiter
	assert.Nil(t, NewRateLimiter(0))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, rl.Wait(ctx), "nil limiter never blocks")
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(100)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "burst capacity should absorb the first requests")
}

func TestRateLimiterCancelledContext(t *testing.T) {
	rl := NewRateLimiter(1)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	// Drain the burst capacity
	for i := 0; i < 2; i++ {
		require.NoError(t, rl.Wait(ctx))
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.Error(t, rl.Wait(cancelled))
}
