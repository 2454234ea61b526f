package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Minute})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "message %d within the burst must pass", i)
	}
	assert.False(t, rl.allow(), "message beyond the burst must be throttled")
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Burst: 1, RefillInterval: 20 * time.Millisecond})

	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.allow(), "token must refill after the interval")
}

func TestRateLimiterRefillNeverExceedsBurst(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Burst: 2, RefillInterval: 100 * time.Millisecond})

	// Long idle periods earn at most a full burst, never more.
	time.Sleep(250 * time.Millisecond)
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}

func TestRateLimiterSanitizesParameters(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	assert.True(t, rl.allow(), "a degenerate limiter still allows one message")
	assert.False(t, rl.allow())
}
