package cache

import (
	"context"
	"sync"

	"github.com/lucko/bytebin/internal/content"
)

// Direct is the uncached loader: every Get delegates straight to the
// coordinator. A small side map of in-flight save futures is
// consulted first, so a GET that races a POST's durable write still
// observes the freshly created content instead of a transient 404.
type Direct struct {
	load    coordinatorLoad
	mu      sync.Mutex
	pending map[string]*content.Record
}

func NewDirect(load coordinatorLoad) *Direct {
	return &Direct{load: load, pending: make(map[string]*content.Record)}
}

func (d *Direct) Get(ctx context.Context, key string) (*content.Record, error) {
	d.mu.Lock()
	if rec, ok := d.pending[key]; ok {
		d.mu.Unlock()
		return rec, nil
	}
	d.mu.Unlock()
	return d.load(ctx, key)
}

// Put registers rec as in-flight for key until its save-completion
// signal fires, at which point it is pruned automatically.
func (d *Direct) Put(key string, rec *content.Record) {
	d.mu.Lock()
	d.pending[key] = rec
	d.mu.Unlock()

	go func() {
		<-rec.Saved()
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
	}()
}

func (d *Direct) Invalidate(keys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range keys {
		delete(d.pending, key)
	}
}
