package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()
		}
	}
	return nil
}

func TestNilMetricsMethodsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordRequest("get", time.Millisecond)
	m.RecordRejected("post", "rate_limited")
	m.ObserveContentSize(128)
	m.IncIndexError("get")
	m.IncBackendError("disk", "save")
	m.IncCacheHit()
	m.IncCacheMiss()
	m.SetStoredGauges("text/plain", "disk", 1, 100)
	m.DeleteStoredGauges("text/plain", "disk")
	m.IncActive()
	m.DecActive()
}

func TestRecordRequestIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRequest("get", 50*time.Millisecond)
	m.RecordRequest("get", 25*time.Millisecond)

	counters := gather(t, reg, "bytebin_requests_total")
	require.Len(t, counters, 1)
	require.Equal(t, 2.0, counters[0].GetCounter().GetValue())

	histograms := gather(t, reg, "bytebin_request_duration_seconds")
	require.Len(t, histograms, 1)
	require.Equal(t, uint64(2), histograms[0].GetHistogram().GetSampleCount())
}

func TestSetAndDeleteStoredGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetStoredGauges("text/plain", "disk", 3, 900)
	gauges := gather(t, reg, "bytebin_stored_content_count")
	require.Len(t, gauges, 1)
	require.Equal(t, 3.0, gauges[0].GetGauge().GetValue())

	m.DeleteStoredGauges("text/plain", "disk")
	require.Empty(t, gather(t, reg, "bytebin_stored_content_count"))
}

func TestActiveGaugeTracksInFlightRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncActive()
	m.IncActive()
	gauges := gather(t, reg, "bytebin_requests_active")
	require.Len(t, gauges, 1)
	require.Equal(t, 2.0, gauges[0].GetGauge().GetValue())

	m.DecActive()
	gauges = gather(t, reg, "bytebin_requests_active")
	require.Equal(t, 1.0, gauges[0].GetGauge().GetValue())
}

func TestCacheHitMissCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncCacheHit()
	m.IncCacheHit()
	m.IncCacheMiss()

	hits := gather(t, reg, "bytebin_cache_hits_total")
	require.Len(t, hits, 1)
	require.Equal(t, 2.0, hits[0].GetCounter().GetValue())

	misses := gather(t, reg, "bytebin_cache_misses_total")
	require.Len(t, misses, 1)
	require.Equal(t, 1.0, misses[0].GetCounter().GetValue())
}
