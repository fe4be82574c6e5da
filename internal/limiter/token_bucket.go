package limiter

import (
	"math"
	"sync"
	"time"

	"github.com/wardenlimit/warden/internal/clock"
)

// TokenBucket admits requests while tokens remain and refills them at a
// constant rate. Burst capacity allows short spikes above the steady rate.
type TokenBucket struct {
	clock    clock.Clock
	rate     float64 // tokens per second
	capacity float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a token bucket that admits max requests per window.
// burst caps accumulated tokens; 0 means burst = max.
func NewTokenBucket(max int, window time.Duration, burst int, c clock.Clock) *TokenBucket {
	if burst <= 0 {
		burst = max
	}
	return &TokenBucket{
		clock:      c,
		rate:       float64(max) / window.Seconds(),
		capacity:   float64(burst),
		tokens:     float64(burst),
		lastRefill: c.Now(),
	}
}

// refill adds tokens for the time elapsed since the last call, capped at
// capacity. Must be called with tb.mu held.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) Consume(n int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(tb.clock.Now())

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(tb.clock.Now())
	return int(math.Floor(tb.tokens))
}

// ResetTime reports when the bucket is full again, not when the next single
// token arrives.
func (tb *TokenBucket) ResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	tb.refill(now)

	deficit := tb.capacity - tb.tokens
	if deficit <= 0 {
		return now
	}
	return now.Add(time.Duration(deficit / tb.rate * float64(time.Second)))
}
