// Package executor provides the bounded worker pool every blocking
// I/O operation (backend load/save, index writes, gzip of large
// buffers, housekeeping sweeps) runs on, so the HTTP goroutines that
// schedule that work are never themselves the thing limiting
// concurrency. Request handlers and the housekeeper share one Pool,
// matching the "event loop only parses and schedules; the pool
// executes" split the original's Vert.x-style dispatcher enforced
// with its own executor service.
package executor

import (
	"context"

	"github.com/lucko/bytebin/internal/content"
)

// Pool caps the number of I/O operations running at once to size.
// Submitting more work than that blocks the submitting goroutine
// until a slot frees up; it never queues unboundedly and never drops
// work.
type Pool struct {
	sem chan struct{}
}

// New builds a Pool that allows at most size operations to run
// concurrently. size <= 0 is treated as 1, so a pool is never
// accidentally unbounded.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Go schedules fn to run on the pool without blocking the caller: a
// goroutine is started immediately, but fn itself only runs once a
// slot is free, so the pool's concurrency cap is enforced on
// execution rather than on scheduling. Used by fire-and-forget writes
// (the POST/UPDATE durable save) where the handler has already
// returned its response and nothing awaits fn's completion.
func (p *Pool) Go(fn func()) {
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Do runs fn on the pool and blocks the caller until it completes,
// the way a suspended request handler waits on its future to resolve.
// Acquisition of a slot honours ctx cancellation (the handler's
// request timeout); once fn has started, it runs to completion
// regardless of ctx, matching the spec's "worker pool does not cancel
// in-flight I/O" contract — backend operations must already be safe
// to retry, not safe to abandon mid-write.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}

// WrapLoad adapts a coordinator-shaped load function so every call
// runs through Do, bounding cache-miss backend reads on the same pool
// that bounds every other scheduled I/O operation.
func (p *Pool) WrapLoad(load func(ctx context.Context, key string) (*content.Record, error)) func(ctx context.Context, key string) (*content.Record, error) {
	return func(ctx context.Context, key string) (*content.Record, error) {
		var rec *content.Record
		err := p.Do(ctx, func() error {
			var loadErr error
			rec, loadErr = load(ctx, key)
			return loadErr
		})
		return rec, err
	}
}
