// Package content defines the shared record type that flows between
// the cache, the coordinator, the storage backends, and the index.
package content

import (
	"strings"
	"sync"
	"time"
)

// Record is a single stored blob plus its metadata. A Record may carry
// only metadata (Content == nil) when it has been loaded from the
// index without touching the backend.
type Record struct {
	Key           string
	ContentType   string
	Encoding      []string
	Expiry        time.Time // zero value means "never"
	LastModified  time.Time
	Modifiable    bool
	AuthKey       string
	BackendID     string
	ContentLength int64
	Content       []byte

	savedOnce sync.Once
	saved     chan struct{}
}

// NewSaveSignal installs a fresh, open save-completion channel on the
// record. Must be called once per record before it is handed to any
// reader that might wait on Saved().
func (r *Record) NewSaveSignal() {
	r.saved = make(chan struct{})
}

// Saved returns the channel that is closed once the record's first
// durable write attempt has completed, successfully or not.
func (r *Record) Saved() <-chan struct{} {
	if r.saved == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.saved
}

// MarkSaved closes the save-completion signal exactly once.
func (r *Record) MarkSaved() {
	r.savedOnce.Do(func() {
		if r.saved != nil {
			close(r.saved)
		}
	})
}

// EncodingHeader renders Encoding as the comma-joined string used on
// the wire and in storage.
func (r *Record) EncodingHeader() string {
	return strings.Join(r.Encoding, ",")
}

// IsEmpty reports whether r represents the "not found" sentinel: a
// record with no key or no bytes.
func (r *Record) IsEmpty() bool {
	return r == nil || r.Key == "" || len(r.Content) == 0
}

// Empty returns the canonical not-found sentinel record.
func Empty() *Record {
	return &Record{}
}
