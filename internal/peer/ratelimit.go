package peer

import (
	"sync"
	"time"
)

// bucket is a monotonic-clock token bucket.
type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (b *bucket) take(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter is a per-endpoint, per-key set of token buckets.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	perMinute float64
}

// NewRateLimiter builds a limiter allowing perMinute requests per key per
// endpoint, refilling continuously (e.g. 60/minute for public read
// endpoints).
func NewRateLimiter(perMinute float64) *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket), perMinute: perMinute}
}

// Allow reports whether a request keyed by (endpoint, key) may proceed
// now, consuming a token if so.
func (rl *RateLimiter) Allow(endpoint, key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	bucketKey := endpoint + "|" + key
	b, ok := rl.buckets[bucketKey]
	if !ok {
		b = &bucket{tokens: rl.perMinute, capacity: rl.perMinute, refillRate: rl.perMinute / 60, lastRefill: now}
		rl.buckets[bucketKey] = b
	}
	return b.take(now)
}
