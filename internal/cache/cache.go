// Package cache implements the content loader that sits in front of
// the storage coordinator: a byte-weighted, sharded LRU with
// single-flight loading ("cached mode"), or a thin passthrough guarded
// by a small in-flight-save map ("direct mode").
package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/metrics"
)

// Loader is the capability the request handlers depend on.
type Loader interface {
	Get(ctx context.Context, key string) (*content.Record, error)
	Put(key string, rec *content.Record)
	Invalidate(keys []string)
}

// coordinatorLoad is the miss loader every Loader delegates to.
type coordinatorLoad func(ctx context.Context, key string) (*content.Record, error)

const shardCount = 64

type entry struct {
	key    string
	rec    *content.Record
	weight int64
}

type shard struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	weight  int64
}

// Cached is the byte-weighted sharded LRU. Capacity is enforced as a
// total byte budget across all shards combined, split evenly per
// shard, mirroring the archive-serve entry cache's shard/evict shape.
type Cached struct {
	shards      [shardCount]*shard
	maxWeight   int64 // total across all shards
	load        coordinatorLoad
	group       singleflight.Group
	metrics     *metrics.Metrics
}

func NewCached(maxBytes int64, load coordinatorLoad, m *metrics.Metrics) *Cached {
	c := &Cached{maxWeight: maxBytes, load: load, metrics: m}
	for i := range c.shards {
		c.shards[i] = &shard{
			items: make(map[string]*list.Element),
			order: list.New(),
		}
	}
	return c
}

func (c *Cached) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(shardCount)]
}

func (c *Cached) maxWeightPerShard() int64 {
	return c.maxWeight / int64(shardCount)
}

// Get returns the record for key, loading through the coordinator on a
// miss. Concurrent Gets for the same key share one load via
// singleflight.
func (c *Cached) Get(ctx context.Context, key string) (*content.Record, error) {
	if rec, ok := c.lookup(key); ok {
		c.metrics.IncCacheHit()
		return rec, nil
	}
	c.metrics.IncCacheMiss()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		rec, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil && !rec.IsEmpty() {
			c.insert(key, rec)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*content.Record), nil
}

func (c *Cached) lookup(key string) (*content.Record, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry).rec, true
}

// Put pre-populates the cache for key, used at POST time so a
// subsequent GET doesn't race the durable save.
func (c *Cached) Put(key string, rec *content.Record) {
	c.insert(key, rec)
}

func (c *Cached) insert(key string, rec *content.Record) {
	s := c.shardFor(key)
	weight := int64(len(rec.Content))

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		old := el.Value.(*entry)
		s.weight -= old.weight
		s.order.Remove(el)
		delete(s.items, key)
	}

	el := s.order.PushFront(&entry{key: key, rec: rec, weight: weight})
	s.items[key] = el
	s.weight += weight

	budget := c.maxWeightPerShard()
	for s.weight > budget && s.order.Len() > 1 {
		back := s.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*entry)
		s.order.Remove(back)
		delete(s.items, victim.key)
		s.weight -= victim.weight
	}
}

// Invalidate drops keys from the cache, used after a bulk delete.
func (c *Cached) Invalidate(keys []string) {
	for _, key := range keys {
		s := c.shardFor(key)
		s.mu.Lock()
		if el, ok := s.items[key]; ok {
			victim := el.Value.(*entry)
			s.order.Remove(el)
			delete(s.items, key)
			s.weight -= victim.weight
		}
		s.mu.Unlock()
	}
}
