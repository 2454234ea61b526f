// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the relay from abusive publishers.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a whole-token bucket: a connection may burst up to Burst
// messages, then earns one token per RefillInterval/Burst of elapsed time.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   int
	burst    int
	perToken time.Duration
	earned   time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	perToken := interval / time.Duration(burst)
	if perToken <= 0 {
		perToken = time.Nanosecond
	}

	return &rateLimiter{
		tokens:   burst,
		burst:    burst,
		perToken: perToken,
		earned:   time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if n := int(now.Sub(rl.earned) / rl.perToken); n > 0 {
		rl.tokens += n
		rl.earned = rl.earned.Add(time.Duration(n) * rl.perToken)
		if rl.tokens >= rl.burst {
			rl.tokens = rl.burst
			rl.earned = now
		}
	}

	if rl.tokens == 0 {
		return false
	}
	rl.tokens--
	return true
}
