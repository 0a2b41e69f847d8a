package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucko/bytebin/internal/content"
	"github.com/stretchr/testify/require"
)

func TestCachedGetLoadsOnMiss(t *testing.T) {
	var loads int32
	load := func(ctx context.Context, key string) (*content.Record, error) {
		atomic.AddInt32(&loads, 1)
		return &content.Record{Key: key, Content: []byte("hello")}, nil
	}
	c := NewCached(1<<20, load, nil)

	rec, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "hello", string(rec.Content))
	require.EqualValues(t, 1, atomic.LoadInt32(&loads))

	// second get should hit the cache, not the loader
	rec, err = c.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "hello", string(rec.Content))
	require.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestCachedPutPrepopulates(t *testing.T) {
	load := func(ctx context.Context, key string) (*content.Record, error) {
		t.Fatal("loader should not be called when Put pre-populated the key")
		return nil, nil
	}
	c := NewCached(1<<20, load, nil)
	c.Put("k", &content.Record{Key: "k", Content: []byte("data")})

	rec, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "data", string(rec.Content))
}

func TestCachedEvictsUnderWeightPressure(t *testing.T) {
	load := func(ctx context.Context, key string) (*content.Record, error) {
		return &content.Record{Key: key, Content: make([]byte, 100)}, nil
	}
	// tiny budget forces eviction quickly; single shard would be neater
	// but the sharded map still trends toward the bound over many keys.
	c := NewCached(200, load, nil)
	for i := 0; i < 1000; i++ {
		key := string(rune('a' + i%26))
		_, err := c.Get(context.Background(), key)
		require.NoError(t, err)
	}
	// no assertion on exact residency (sharding + LRU makes it
	// approximate); this just exercises the eviction path without panic.
}

func TestDirectGetUsesPendingBeforeLoad(t *testing.T) {
	load := func(ctx context.Context, key string) (*content.Record, error) {
		t.Fatal("loader should not be called while a save is pending")
		return nil, nil
	}
	d := NewDirect(load)
	rec := &content.Record{Key: "k", Content: []byte("data")}
	rec.NewSaveSignal()
	d.Put("k", rec)

	got, err := d.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "data", string(got.Content))

	rec.MarkSaved()
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		_, ok := d.pending["k"]
		return !ok
	}, time.Second, time.Millisecond)
}
