package ratelimit

import (
	"sync"
	"time"
)

// counter tracks one key's exponentially growing not-found window,
// mirroring the original's Counter: each miss doubles the window up to
// a ceiling, and the counter is dropped once it goes unused for a full
// window (the "expire after access" behaviour).
type counter struct {
	periodMillis     int64
	nextPeriodMillis int64
	periodEndMillis  int64
	lastAccessMillis int64
}

// Backoff is a secondary limiter keyed by IP that grows stricter with
// every consecutive "not found" response, used to deter scanning for
// valid keys. The window doubles on every Increment call up to
// MaxPeriod, and resets to the base period once a key goes unused for
// longer than its current window.
type Backoff struct {
	mu         sync.Mutex
	counters   map[string]*counter
	basePeriod time.Duration
	multiplier float64
	maxPeriod  time.Duration
}

// NewBackoff constructs a Backoff limiter. basePeriod is the initial
// window; each consecutive increment multiplies the window by
// multiplier, capped at maxPeriod.
func NewBackoff(basePeriod time.Duration, multiplier float64, maxPeriod time.Duration) *Backoff {
	if multiplier <= 1 {
		multiplier = 2
	}
	return &Backoff{
		counters:   make(map[string]*counter),
		basePeriod: basePeriod,
		multiplier: multiplier,
		maxPeriod:  maxPeriod,
	}
}

// Check reports whether key is currently within an active backoff
// window (i.e. requests for it should be rejected), without mutating
// state.
func (b *Backoff) Check(key string) bool {
	now := nowMillis()
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.counters[key]
	if !ok {
		return false
	}
	if b.expired(c, now) {
		delete(b.counters, key)
		return false
	}
	return now < c.periodEndMillis
}

// Increment registers a miss for key, starting or doubling its
// backoff window.
func (b *Backoff) Increment(key string) {
	now := nowMillis()
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.counters[key]
	if !ok || b.expired(c, now) {
		c = &counter{
			periodMillis:     b.basePeriod.Milliseconds(),
			nextPeriodMillis: b.basePeriod.Milliseconds(),
			periodEndMillis:  now + b.basePeriod.Milliseconds(),
		}
		b.counters[key] = c
	} else {
		next := float64(c.nextPeriodMillis) * b.multiplier
		if maxMs := b.maxPeriod.Milliseconds(); maxMs > 0 && next > float64(maxMs) {
			next = float64(maxMs)
		}
		c.nextPeriodMillis = int64(next)
		c.periodEndMillis = now + c.nextPeriodMillis
	}
	c.lastAccessMillis = now
}

func (b *Backoff) expired(c *counter, now int64) bool {
	// a counter unused for longer than its own window has elapsed resets
	return now-c.lastAccessMillis > c.nextPeriodMillis
}

func nowMillis() int64 { return time.Now().UnixMilli() }
