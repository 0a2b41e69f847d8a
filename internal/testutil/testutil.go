// Package testutil assembles a fully wired, disk-backed Server for
// use in handler and end-to-end tests.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lucko/bytebin/internal/cache"
	"github.com/lucko/bytebin/internal/coordinator"
	"github.com/lucko/bytebin/internal/executor"
	"github.com/lucko/bytebin/internal/expiry"
	"github.com/lucko/bytebin/internal/handler"
	"github.com/lucko/bytebin/internal/index"
	"github.com/lucko/bytebin/internal/logsink"
	"github.com/lucko/bytebin/internal/metrics"
	"github.com/lucko/bytebin/internal/ratelimit"
	"github.com/lucko/bytebin/internal/storage"
	"github.com/lucko/bytebin/internal/storage/selector"
	"github.com/lucko/bytebin/internal/token"
)

// Options lets a test override the defaults used by NewServer.
type Options struct {
	MaxContentLength int64
	ExpiryDefault    time.Duration
	PostLimit        int
	PostPeriod       time.Duration
	UpdateLimit      int
	UpdatePeriod     time.Duration
	ReadLimit        int
	ReadPeriod       time.Duration
	RateLimitAPIKeys []string
	AdminAPIKeys     []string
}

// NewServer builds a handler.Server backed by a temp-dir local disk
// backend and a temp bbolt index, registering cleanup with t.
func NewServer(t *testing.T, opts Options) *handler.Server {
	t.Helper()

	if opts.MaxContentLength == 0 {
		opts.MaxContentLength = 10 << 20
	}
	if opts.PostLimit == 0 {
		opts.PostLimit = 1000
	}
	if opts.PostPeriod == 0 {
		opts.PostPeriod = time.Minute
	}
	if opts.UpdateLimit == 0 {
		opts.UpdateLimit = 1000
	}
	if opts.UpdatePeriod == 0 {
		opts.UpdatePeriod = time.Minute
	}
	if opts.ReadLimit == 0 {
		opts.ReadLimit = 1000
	}
	if opts.ReadPeriod == 0 {
		opts.ReadPeriod = time.Minute
	}

	backend, err := storage.NewLocalDisk("disk-0", t.TempDir())
	require.NoError(t, err)

	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	m := metrics.New(prometheus.NewRegistry())
	coord := coordinator.New(idx, map[string]storage.Backend{"disk-0": backend}, selector.Static{Backend: backend}, m)

	pool := executor.New(4)
	loader := cache.NewDirect(pool.WrapLoad(coord.Load))

	postLimiter, err := ratelimit.New(opts.PostPeriod, opts.PostLimit)
	require.NoError(t, err)
	t.Cleanup(func() { postLimiter.Close() })

	updateLimiter, err := ratelimit.New(opts.UpdatePeriod, opts.UpdateLimit)
	require.NoError(t, err)
	t.Cleanup(func() { updateLimiter.Close() })

	readLimiter, err := ratelimit.New(opts.ReadPeriod, opts.ReadLimit)
	require.NoError(t, err)
	t.Cleanup(func() { readLimiter.Close() })

	rateLimitAPIKeys := toSet(opts.RateLimitAPIKeys)
	adminAPIKeys := toSet(opts.AdminAPIKeys)

	s := handler.NewServer()
	s.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.Tokens = token.New(7)
	s.PostLimiter = postLimiter
	s.UpdateLimiter = updateLimiter
	s.ReadLimiter = readLimiter
	s.NotFoundLimiter = ratelimit.NewBackoff(time.Minute, 2, time.Hour)
	s.RateLimitAPIKeys = rateLimitAPIKeys
	s.AdminAPIKeys = adminAPIKeys
	s.Expiry = &expiry.Policy{Default: opts.ExpiryDefault}
	s.Cache = loader
	s.Coord = coord
	s.Metrics = m
	s.Sink = logsink.Noop{}
	s.Pool = pool
	s.MaxContentLength = opts.MaxContentLength
	s.MetricsEnabled = true

	return s
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}
