package housekeeper

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/coordinator"
	"github.com/lucko/bytebin/internal/executor"
	"github.com/lucko/bytebin/internal/index"
	"github.com/lucko/bytebin/internal/metrics"
	"github.com/lucko/bytebin/internal/storage"
	"github.com/lucko/bytebin/internal/storage/selector"
)

func newFixture(t *testing.T) (*coordinator.Coordinator, *metrics.Metrics, *prometheus.Registry, *index.Index) {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	backend, err := storage.NewLocalDisk("disk-0", t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	coord := coordinator.New(idx, map[string]storage.Backend{"disk-0": backend}, selector.Static{Backend: backend}, m)
	return coord, m, reg, idx
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHousekeeperRunOnceDeletesExpired(t *testing.T) {
	coord, m, _, idx := newFixture(t)
	ctx := context.Background()

	expired := &content.Record{Key: "expkey", Content: []byte("hi"), ContentLength: 2, Expiry: time.Now().Add(-time.Minute)}
	require.NoError(t, coord.Save(ctx, expired))

	hk := New(coord, m, discardLogger(), time.Hour, 0, executor.New(4))
	hk.runOnce(ctx)

	got, err := idx.Get("expkey")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHousekeeperRefreshGaugesZeroesStaleLabels(t *testing.T) {
	coord, m, reg, _ := newFixture(t)
	ctx := context.Background()

	rec := &content.Record{Key: "keepme", Content: []byte("hi"), ContentLength: 2, ContentType: "text/plain"}
	require.NoError(t, coord.Save(ctx, rec))

	hk := New(coord, m, discardLogger(), time.Hour, 0, executor.New(4))
	require.NoError(t, hk.refreshGauges(ctx))
	require.Equal(t, 1.0, gaugeValue(t, reg, "text/plain", "disk-0"))

	require.NoError(t, coord.Delete(ctx, rec))
	require.NoError(t, hk.refreshGauges(ctx))
	require.Equal(t, 0.0, gaugeValue(t, reg, "text/plain", "disk-0"))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, contentType, backend string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "bytebin_stored_content_count" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric, contentType, backend) {
				return metric.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, contentType, backend string) bool {
	var gotType, gotBackend string
	for _, l := range metric.GetLabel() {
		switch l.GetName() {
		case "content_type":
			gotType = l.GetValue()
		case "backend":
			gotBackend = l.GetValue()
		}
	}
	return gotType == contentType && gotBackend == backend
}
