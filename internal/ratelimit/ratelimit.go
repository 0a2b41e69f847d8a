// Package ratelimit implements the fixed-window per-key limiter used
// to throttle POST/PUT/GET traffic, plus a secondary exponential
// backoff limiter used to deter scanning for missing content.
package ratelimit

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/allegro/bigcache/v3"
)

// Limiter is a fixed-window counter keyed by an arbitrary string (in
// practice, the caller's IP address). Each key maps to a count that
// resets after Period has elapsed since the key's first increment in
// the current window. It is backed by bigcache, which already
// provides the TTL-expiring byte-addressed store this needs; we just
// repurpose it to hold a 4-byte counter per key instead of a blob.
type Limiter struct {
	cache  *bigcache.BigCache
	max    int
	period time.Duration
}

// New constructs a Limiter allowing at most max actions per period for
// any one key.
func New(period time.Duration, max int) (*Limiter, error) {
	cfg := bigcache.DefaultConfig(period)
	cfg.CleanWindow = period / 10
	if cfg.CleanWindow <= 0 {
		cfg.CleanWindow = time.Second
	}
	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &Limiter{cache: cache, max: max, period: period}, nil
}

// Check atomically increments the counter for key and reports whether
// the window's maximum has now been exceeded.
func (l *Limiter) Check(key string) (bool, error) {
	count, err := l.increment(key)
	if err != nil {
		return false, err
	}
	return count > l.max, nil
}

// increment re-`Set`s the entry on every call, which refreshes
// bigcache's own TTL clock for the key; bigcache's expiry therefore
// cannot be trusted to anchor the window. The window's first-write
// instant is carried inside the entry payload instead, so membership
// is decided against that stored instant rather than against
// bigcache's refresh-on-write eviction, matching the "expires after
// the window elapses since first write" contract even under
// sustained, repeatedly-rejected traffic.
func (l *Limiter) increment(key string) (int, error) {
	now := time.Now()

	entry, err := l.cache.Get(key)
	var firstWrite time.Time
	var count int
	if err == nil && len(entry) == 12 {
		firstWrite = time.Unix(0, int64(binary.BigEndian.Uint64(entry[:8])))
		count = int(binary.BigEndian.Uint32(entry[8:]))
		if now.Sub(firstWrite) >= l.period {
			firstWrite = now
			count = 0
		}
	} else if err != nil && err != bigcache.ErrEntryNotFound {
		return 0, err
	}
	if firstWrite.IsZero() {
		firstWrite = now
	}
	count++

	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], uint64(firstWrite.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:], uint32(count))
	if err := l.cache.Set(key, buf); err != nil {
		return 0, err
	}
	return count, nil
}

// Close releases the limiter's background eviction goroutine.
func (l *Limiter) Close() error {
	return l.cache.Close()
}
