// Package expiry maps a request's user-agent, origin, and host to a
// content lifetime.
package expiry

import "time"

// Policy resolves a lifetime duration for a request, applying an
// override table keyed by user-agent, then origin, then host (first
// match wins), falling back to a default.
type Policy struct {
	Default   time.Duration
	UserAgent map[string]time.Duration
	Origin    map[string]time.Duration
	Host      map[string]time.Duration
}

// Never is the zero time.Time, used as the sentinel for "does not expire".
var Never time.Time

// Resolve returns the lifetime that applies to this request, in
// precedence order user-agent, origin, host, then the policy default.
func (p *Policy) Resolve(userAgent, origin, host string) time.Duration {
	if d, ok := p.UserAgent[userAgent]; ok {
		return d
	}
	if d, ok := p.Origin[origin]; ok {
		return d
	}
	if d, ok := p.Host[host]; ok {
		return d
	}
	return p.Default
}

// Expiry returns the absolute expiry instant for a request made now,
// or the zero time.Time ("never") if the resolved duration is
// non-positive.
func (p *Policy) Expiry(now time.Time, userAgent, origin, host string) time.Time {
	d := p.Resolve(userAgent, origin, host)
	if d <= 0 {
		return Never
	}
	return now.Add(d)
}

// IsNever reports whether t is the "never expires" sentinel.
func IsNever(t time.Time) bool { return t.IsZero() }

// IsExpired reports whether t names an instant strictly before now.
// Never-expiring records (the zero time.Time) are never expired.
func IsExpired(t, now time.Time) bool {
	if IsNever(t) {
		return false
	}
	return t.Before(now)
}
