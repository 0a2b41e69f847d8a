package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/index"
	"github.com/lucko/bytebin/internal/metrics"
	"github.com/lucko/bytebin/internal/storage"
	"github.com/lucko/bytebin/internal/storage/selector"
)

func newFixture(t *testing.T) (*Coordinator, *index.Index, map[string]storage.Backend) {
	t.Helper()

	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	small, err := storage.NewLocalDisk("small", t.TempDir())
	require.NoError(t, err)
	large, err := storage.NewLocalDisk("large", t.TempDir())
	require.NoError(t, err)

	backends := map[string]storage.Backend{"small": small, "large": large}
	sel := selector.IfSizeGt{ThresholdBytes: 10, Backend: large, Next: selector.Static{Backend: small}}

	m := metrics.New(prometheus.NewRegistry())
	return New(idx, backends, sel, m), idx, backends
}

func TestCoordinatorSaveRoutesBySize(t *testing.T) {
	coord, _, _ := newFixture(t)
	ctx := context.Background()

	small := &content.Record{Key: "smallkey", Content: []byte("hi"), ContentLength: 2}
	require.NoError(t, coord.Save(ctx, small))
	require.Equal(t, "small", small.BackendID)

	big := &content.Record{Key: "bigkey", Content: []byte("this is more than ten bytes"), ContentLength: 28}
	require.NoError(t, coord.Save(ctx, big))
	require.Equal(t, "large", big.BackendID)

	got, err := coord.Load(ctx, "bigkey")
	require.NoError(t, err)
	require.Equal(t, big.Content, got.Content)
}

func TestCoordinatorLoadUnknownKeyReturnsEmpty(t *testing.T) {
	coord, _, _ := newFixture(t)
	got, err := coord.Load(context.Background(), "missing")
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}

func TestCoordinatorDeleteRemovesFromBothIndexAndBackend(t *testing.T) {
	coord, idx, _ := newFixture(t)
	ctx := context.Background()

	rec := &content.Record{Key: "todelete", Content: []byte("hi"), ContentLength: 2}
	require.NoError(t, coord.Save(ctx, rec))

	require.NoError(t, coord.Delete(ctx, rec))

	meta, err := idx.Get("todelete")
	require.NoError(t, err)
	require.Nil(t, meta)

	got, err := coord.Load(ctx, "todelete")
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}

func TestCoordinatorBulkDeleteForceRecoversOrphan(t *testing.T) {
	coord, _, backends := newFixture(t)
	ctx := context.Background()

	// write directly to a backend, bypassing the index, to simulate an orphan.
	orphan := &content.Record{Key: "orphankey", Content: []byte("hi"), ContentLength: 2}
	require.NoError(t, backends["small"].Save(ctx, orphan))

	deletedWithoutForce, err := coord.BulkDelete(ctx, []string{"orphankey"}, false)
	require.NoError(t, err)
	require.Equal(t, 0, deletedWithoutForce)

	deletedWithForce, err := coord.BulkDelete(ctx, []string{"orphankey"}, true)
	require.NoError(t, err)
	require.Equal(t, 1, deletedWithForce)

	got, err := backends["small"].Load(ctx, "orphankey")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCoordinatorRunInvalidationDeletesExpired(t *testing.T) {
	coord, idx, _ := newFixture(t)
	ctx := context.Background()

	expired := &content.Record{
		Key:           "expiredkey",
		Content:       []byte("hi"),
		ContentLength: 2,
		Expiry:        time.Now().Add(-time.Hour),
	}
	fresh := &content.Record{
		Key:           "freshkey",
		Content:       []byte("hi"),
		ContentLength: 2,
		Expiry:        time.Now().Add(time.Hour),
	}
	require.NoError(t, coord.Save(ctx, expired))
	require.NoError(t, coord.Save(ctx, fresh))

	deleted, err := coord.RunInvalidation(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"expiredkey"}, deleted)

	_, err = idx.Get("expiredkey")
	require.NoError(t, err)
	remaining, err := idx.Get("freshkey")
	require.NoError(t, err)
	require.NotNil(t, remaining)
}

func TestCoordinatorRunAuditFindsOrphanedObject(t *testing.T) {
	coord, _, backends := newFixture(t)
	ctx := context.Background()

	orphan := &content.Record{Key: "orphan2", Content: []byte("hi"), ContentLength: 2}
	require.NoError(t, backends["small"].Save(ctx, orphan))

	report, err := coord.RunAudit(ctx)
	require.NoError(t, err)
	require.Contains(t, report.OrphanedObjects, "orphan2")
}
