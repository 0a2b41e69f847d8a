// Package metrics wraps the Prometheus collectors exposed by the
// service behind nil-receiver-safe methods, so components can be
// constructed and exercised in tests without a real registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine reports. A nil *Metrics is
// valid: every method below degrades to a no-op, matching the pattern
// used by the archive-serve metrics facade this is grounded on.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestsActive  prometheus.Gauge
	contentSize     prometheus.Summary
	indexErrors     *prometheus.CounterVec
	backendErrors   *prometheus.CounterVec
	storedCount     *prometheus.GaugeVec
	storedSize      *prometheus.GaugeVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// New registers every collector against reg and returns the facade.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bytebin_requests_total",
			Help: "Total number of requests handled, by method.",
		}, []string{"method"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bytebin_rejected_requests_total",
			Help: "Total number of requests rejected, by method and reason.",
		}, []string{"method", "reason"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bytebin_request_duration_seconds",
			Help:    "Request handling latency, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		requestsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bytebin_requests_active",
			Help: "Number of requests currently being handled.",
		}),
		contentSize: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "bytebin_content_size_bytes",
			Help: "Size distribution of posted/updated content.",
		}),
		indexErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bytebin_index_errors_total",
			Help: "Total number of index operation errors, by operation.",
		}, []string{"operation"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bytebin_backend_errors_total",
			Help: "Total number of backend operation errors, by backend and operation.",
		}, []string{"backend", "operation"}),
		storedCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bytebin_stored_content_count",
			Help: "Number of stored records, by content type and backend.",
		}, []string{"content_type", "backend"}),
		storedSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bytebin_stored_content_bytes",
			Help: "Total stored bytes, by content type and backend.",
		}, []string{"content_type", "backend"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytebin_cache_hits_total",
			Help: "Total number of content cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytebin_cache_misses_total",
			Help: "Total number of content cache misses.",
		}),
	}
	reg.MustRegister(
		m.requestsTotal, m.rejectedTotal, m.requestDuration, m.requestsActive, m.contentSize,
		m.indexErrors, m.backendErrors, m.storedCount, m.storedSize,
		m.cacheHits, m.cacheMisses,
	)
	return m
}

func (m *Metrics) RecordRequest(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncActive and DecActive track the number of requests currently being
// handled, incremented around dispatch in handler.Server.ServeHTTP.
func (m *Metrics) IncActive() {
	if m == nil {
		return
	}
	m.requestsActive.Inc()
}

func (m *Metrics) DecActive() {
	if m == nil {
		return
	}
	m.requestsActive.Dec()
}

func (m *Metrics) RecordRejected(method, reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(method, reason).Inc()
}

func (m *Metrics) ObserveContentSize(n int) {
	if m == nil {
		return
	}
	m.contentSize.Observe(float64(n))
}

func (m *Metrics) IncIndexError(operation string) {
	if m == nil {
		return
	}
	m.indexErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncBackendError(backend, operation string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend, operation).Inc()
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// SetStoredGauges sets the stored-content count/size gauges for one
// (content_type, backend) label pair.
func (m *Metrics) SetStoredGauges(contentType, backend string, count, size int64) {
	if m == nil {
		return
	}
	m.storedCount.WithLabelValues(contentType, backend).Set(float64(count))
	m.storedSize.WithLabelValues(contentType, backend).Set(float64(size))
}

// DeleteStoredGauges removes a (content_type, backend) label pair
// entirely, used to zero out labels that no longer have any rows.
func (m *Metrics) DeleteStoredGauges(contentType, backend string) {
	if m == nil {
		return
	}
	m.storedCount.DeleteLabelValues(contentType, backend)
	m.storedSize.DeleteLabelValues(contentType, backend)
}
