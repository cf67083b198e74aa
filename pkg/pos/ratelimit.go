package pos

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter bounding API requests per second.
// A nil limiter imposes no limit.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   float64
	lastFill time.Time
}

// NewRateLimiter creates a limiter allowing ratePerSec requests per second
// with bursts up to twice the rate. Returns nil when ratePerSec is zero.
func NewRateLimiter(ratePerSec int) *RateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	burst := float64(ratePerSec * 2)
	return &RateLimiter{
		rate:     float64(ratePerSec),
		burst:    burst,
		tokens:   burst,
		lastFill: time.Now(),
	}
}

// Wait blocks until a request token is available or the context is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		// Time until one token accrues
		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastFill).Seconds()
	rl.lastFill = now

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
}
