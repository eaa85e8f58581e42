// Package ratelimit throttles explicit materialization requests per
// organization with token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter implements token bucket rate limiting per key. Every key gets a
// bucket holding up to perMinute tokens that refills continuously.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	clock     func() time.Time
	buckets   map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// New creates a limiter allowing perMinute requests per key. A perMinute of
// zero or less means unlimited.
func New(perMinute int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		clock:     time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// WithClock replaces the time source. It returns l for chaining.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Unlimited reports whether the limiter lets every request through.
func (l *Limiter) Unlimited() bool { return l.perMinute <= 0 }

// Allow takes one token for key, reporting whether one was available.
func (l *Limiter) Allow(key string) bool {
	if l.Unlimited() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter estimates how long key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if l.Unlimited() {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / l.rate() * float64(time.Second))
}

// rate is tokens per second.
func (l *Limiter) rate() float64 {
	return float64(l.perMinute) / 60
}

// refill returns key's bucket topped up to now. Callers hold l.mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.clock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.perMinute), lastFill: now}
		l.buckets[key] = b
		return b
	}

	if elapsed := now.Sub(b.lastFill).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate()
		if limit := float64(l.perMinute); b.tokens > limit {
			b.tokens = limit
		}
	}
	b.lastFill = now
	return b
}
