// Package selector implements the chain-of-responsibility used to pick
// a backend for a newly saved record.
package selector

import (
	"time"

	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/storage"
)

// Rule resolves the backend that should hold rec, or delegates to the
// next rule in the chain.
type Rule interface {
	Select(rec *content.Record) storage.Backend
}

// Static always selects the same backend; it terminates a chain.
type Static struct {
	Backend storage.Backend
}

func (s Static) Select(*content.Record) storage.Backend { return s.Backend }

// IfSizeGt routes to Backend when the record's content length exceeds
// ThresholdBytes, otherwise defers to Next.
type IfSizeGt struct {
	ThresholdBytes int64
	Backend        storage.Backend
	Next           Rule
}

func (r IfSizeGt) Select(rec *content.Record) storage.Backend {
	if rec.ContentLength > r.ThresholdBytes {
		return r.Backend
	}
	return r.Next.Select(rec)
}

// IfExpiryGt routes to Backend when the record's lifetime exceeds
// Threshold, otherwise defers to Next. A "never" expiry (the zero
// time.Time) is treated as exceeding any threshold.
type IfExpiryGt struct {
	Threshold time.Duration
	Backend   storage.Backend
	Next      Rule
	now       func() time.Time
}

func (r IfExpiryGt) Select(rec *content.Record) storage.Backend {
	now := r.now
	if now == nil {
		now = time.Now
	}
	if rec.Expiry.IsZero() {
		return r.Backend
	}
	if rec.Expiry.Sub(now()) > r.Threshold {
		return r.Backend
	}
	return r.Next.Select(rec)
}
