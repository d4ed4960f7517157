// Package ratelimit throttles storefront API calls with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/logging"
)

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
type RateLimiter struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64
	lastRefill   time.Time
	lastWarnTime time.Time
	cooldownEnd  time.Time
	logger       *logging.Logger
	mu           sync.Mutex
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(tokensPerSecond, burstSize float64) *RateLimiter {
	return &RateLimiter{
		tokens:     burstSize,
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
		logger:     logging.NewNopLogger(),
	}
}

// NewAPIRateLimiter creates the limiter shared by all storefront endpoints.
//
// The storefront publishes no limits. A catalog of a few thousand items costs
// one request per page plus two per downloaded file, so a burst of 20 covers a
// small library outright and 4 req/s keeps large ones polite.
func NewAPIRateLimiter(logger *logging.Logger) *RateLimiter {
	rl := NewRateLimiter(constants.APIRatePerSec, constants.APIBurstCapacity)
	if logger != nil {
		rl.logger = logger
	}
	return rl
}

// Wait blocks until a token is available or ctx is done. An active cooldown
// is waited out first.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if d := rl.CooldownRemaining(); d > 0 {
		rl.logger.Debug().Dur("cooldown", d).Msg("waiting out API cooldown")
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if rl.tryAcquire() {
		return nil
	}

	start := time.Now()
	if wait := rl.timeUntilNextToken(); wait > 2*time.Second {
		rl.mu.Lock()
		if time.Since(rl.lastWarnTime) > 10*time.Second {
			rl.logger.Warn().Dur("wait", wait).Msg("rate limited, waiting for API capacity")
			rl.lastWarnTime = time.Now()
		}
		rl.mu.Unlock()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rl.tryAcquire() {
			if waited := time.Since(start); waited > 5*time.Second {
				rl.logger.Debug().Dur("waited", waited).Msg("rate limit wait completed")
			}
			return nil
		}

		timer := time.NewTimer(rl.timeUntilNextToken())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Drain empties the bucket, used after the server answers 429.
func (rl *RateLimiter) Drain() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	rl.lastRefill = time.Now()
}

// SetCooldown blocks every Wait for d, e.g. from a Retry-After header.
// A shorter cooldown never cuts an active one short.
func (rl *RateLimiter) SetCooldown(d time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if end := time.Now().Add(d); end.After(rl.cooldownEnd) {
		rl.cooldownEnd = end
	}
}

// CooldownRemaining returns how long the current cooldown still runs.
func (rl *RateLimiter) CooldownRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if d := time.Until(rl.cooldownEnd); d > 0 {
		return d
	}
	return 0
}

// tryAcquire takes one token without blocking.
func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())
	if rl.tokens >= 1.0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

func (rl *RateLimiter) timeUntilNextToken() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	needed := 1.0 - rl.tokens
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / rl.refillRate * float64(time.Second))
}

// GetCurrentTokens returns the current number of tokens (for tests and debug logs).
func (rl *RateLimiter) GetCurrentTokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())
	return rl.tokens
}
