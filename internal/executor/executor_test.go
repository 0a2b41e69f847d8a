package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucko/bytebin/internal/content"
)

func TestDoBoundsConcurrency(t *testing.T) {
	p := New(2)

	var active, maxActive int32
	release := make(chan struct{})
	started := make(chan struct{}, 3)

	run := func() {
		go func() {
			_ = p.Do(context.Background(), func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
						break
					}
				}
				started <- struct{}{}
				<-release
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}

	run()
	run()
	run()

	<-started
	<-started
	select {
	case <-started:
		t.Fatal("third task should not start until a slot frees up")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-started
	require.LessOrEqual(t, int(maxActive), 2)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := New(1)

	block := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			<-block
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

func TestGoRunsUnderCap(t *testing.T) {
	p := New(1)
	done := make(chan struct{})
	p.Go(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go never ran fn")
	}
}

func TestWrapLoadDelegates(t *testing.T) {
	p := New(4)
	wrapped := p.WrapLoad(func(ctx context.Context, key string) (*content.Record, error) {
		return &content.Record{Key: key}, nil
	})

	rec, err := wrapped(context.Background(), "abc1234")
	require.NoError(t, err)
	require.Equal(t, "abc1234", rec.Key)
}
