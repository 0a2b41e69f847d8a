// Package coordinator composes the content index and the registered
// storage backends into the single durable save/load/delete surface
// the rest of the engine depends on.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/index"
	"github.com/lucko/bytebin/internal/metrics"
	"github.com/lucko/bytebin/internal/storage"
	"github.com/lucko/bytebin/internal/storage/selector"
)

// Coordinator owns the index row and the backend object for every key
// it manages. It is the only component permitted to write the index.
type Coordinator struct {
	idx      *index.Index
	backends map[string]storage.Backend
	selector selector.Rule
	metrics  *metrics.Metrics
}

func New(idx *index.Index, backends map[string]storage.Backend, sel selector.Rule, m *metrics.Metrics) *Coordinator {
	return &Coordinator{idx: idx, backends: backends, selector: sel, metrics: m}
}

// Load resolves key via the index, then reads its bytes from the
// backend the index names. A miss at either stage returns the empty
// sentinel, never an error, since "not found" is a routine outcome.
func (c *Coordinator) Load(ctx context.Context, key string) (*content.Record, error) {
	meta, err := c.idx.Get(key)
	if err != nil {
		c.metrics.IncIndexError("get")
		return nil, err
	}
	if meta == nil {
		return content.Empty(), nil
	}
	backend, ok := c.backends[meta.BackendID]
	if !ok {
		c.metrics.IncIndexError("unknown_backend")
		return content.Empty(), nil
	}
	rec, err := backend.Load(ctx, key)
	if err != nil {
		c.metrics.IncBackendError(meta.BackendID, "load")
		return nil, err
	}
	if rec == nil {
		return content.Empty(), nil
	}
	return rec, nil
}

// Save runs the backend selector, stamps BackendID, writes the index
// row, then writes the bytes to the chosen backend. The index is
// written first so that a crash between the two steps leaves a
// detectable orphan (an index row with no backend object) rather than
// a backend object invisible to every future read.
func (c *Coordinator) Save(ctx context.Context, rec *content.Record) error {
	backend := c.selector.Select(rec)
	rec.BackendID = backend.BackendID()

	if err := c.idx.Put(rec); err != nil {
		c.metrics.IncIndexError("put")
		return fmt.Errorf("coordinator: index put %s: %w", rec.Key, err)
	}
	if err := backend.Save(ctx, rec); err != nil {
		c.metrics.IncBackendError(rec.BackendID, "save")
		return fmt.Errorf("coordinator: backend save %s: %w", rec.Key, err)
	}
	return nil
}

// Delete removes rec from its backend, then removes its index row.
// The index is the source of truth: a key absent from the index is
// considered deleted even if a backend write still lingers, which is
// what Audit exists to reconcile.
func (c *Coordinator) Delete(ctx context.Context, rec *content.Record) error {
	if backend, ok := c.backends[rec.BackendID]; ok {
		if err := backend.Delete(ctx, rec.Key); err != nil {
			c.metrics.IncBackendError(rec.BackendID, "delete")
			return err
		}
	}
	if err := c.idx.Remove(rec.Key); err != nil {
		c.metrics.IncIndexError("remove")
		return err
	}
	return nil
}

// BulkDelete deletes every key in keys via the index. When force is
// true, keys missing from the index are also attempted against every
// registered backend (recovering orphans). Returns the count of keys
// actually removed from somewhere.
func (c *Coordinator) BulkDelete(ctx context.Context, keys []string, force bool) (int, error) {
	deleted := 0
	for _, key := range keys {
		meta, err := c.idx.Get(key)
		if err != nil {
			return deleted, err
		}
		if meta != nil {
			if err := c.Delete(ctx, meta); err != nil {
				return deleted, err
			}
			deleted++
			continue
		}
		if !force {
			continue
		}
		removedAny := false
		for _, backend := range c.backends {
			if err := backend.Delete(ctx, key); err == nil {
				removedAny = true
			}
		}
		if removedAny {
			deleted++
		}
	}
	return deleted, nil
}

// RunInvalidation deletes every record the index reports as expired
// as of now. It returns the keys it removed so callers (the
// housekeeper) can log or count them.
func (c *Coordinator) RunInvalidation(ctx context.Context, now time.Time) ([]string, error) {
	expired, err := c.idx.GetExpired(now)
	if err != nil {
		c.metrics.IncIndexError("get_expired")
		return nil, err
	}
	var deletedKeys []string
	for _, rec := range expired {
		if err := c.Delete(ctx, rec); err != nil {
			continue
		}
		deletedKeys = append(deletedKeys, rec.Key)
	}
	return deletedKeys, nil
}

// GroupBy exposes the index's (content_type, backend_id) aggregation
// so the housekeeper can refresh its gauges without reaching past the
// coordinator into the index directly.
func (c *Coordinator) GroupBy() ([]index.Agg, error) {
	return c.idx.GroupBy()
}

// Audit compares the index against every backend's listing and
// reports orphans: index rows with no backing object, and backend
// objects with no index row. It never mutates state; callers decide
// whether to reconcile (e.g. via BulkDelete with force=true, or a
// PutAll rebuild).
type Audit struct {
	OrphanedIndexRows []string // keys present in the index but missing from their backend
	OrphanedObjects   []string // keys present in a backend but absent from the index
}

func (c *Coordinator) RunAudit(ctx context.Context) (*Audit, error) {
	report := &Audit{}
	for _, backend := range c.backends {
		keys, err := backend.ListKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("coordinator: audit list %s: %w", backend.BackendID(), err)
		}
		for _, key := range keys {
			meta, err := c.idx.Get(key)
			if err != nil {
				return nil, err
			}
			if meta == nil || meta.BackendID != backend.BackendID() {
				report.OrphanedObjects = append(report.OrphanedObjects, key)
			}
		}
	}
	return report, nil
}

