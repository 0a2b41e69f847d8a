// Package housekeeper periodically expires content and refreshes the
// stored-content gauges.
package housekeeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/lucko/bytebin/internal/coordinator"
	"github.com/lucko/bytebin/internal/executor"
	"github.com/lucko/bytebin/internal/index"
	"github.com/lucko/bytebin/internal/metrics"
)

// Housekeeper drives the periodic expiry sweep and gauge refresh.
type Housekeeper struct {
	coord    *coordinator.Coordinator
	metrics  *metrics.Metrics
	log      *slog.Logger
	interval time.Duration
	pool     *executor.Pool

	// seenLabels retains the (content_type, backend) pairs reported in
	// the previous run so a run that finds nothing for a label can
	// still zero out its gauge, rather than leaving a stale value
	// behind forever.
	seenLabels map[[2]string]struct{}

	// auditEvery expresses how many ticks pass between low-frequency
	// orphan audits; 0 disables the audit entirely.
	auditEvery int
	tick       int
}

// New builds a Housekeeper that submits its work to pool, sharing the
// same bounded worker pool as request handlers so a long housekeeping
// sweep competes fairly with request traffic rather than running
// outside the concurrency cap entirely.
func New(coord *coordinator.Coordinator, m *metrics.Metrics, log *slog.Logger, interval time.Duration, auditEvery int, pool *executor.Pool) *Housekeeper {
	return &Housekeeper{
		coord:      coord,
		metrics:    m,
		log:        log,
		interval:   interval,
		seenLabels: make(map[[2]string]struct{}),
		auditEvery: auditEvery,
		pool:       pool,
	}
}

// Start launches the ticker-driven loop in a background goroutine and
// returns immediately; the loop exits when ctx is cancelled.
func (h *Housekeeper) Start(ctx context.Context) {
	t := time.NewTicker(h.interval)
	go func() {
		defer t.Stop()
		h.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.runOnce(ctx)
			}
		}
	}()
}

func (h *Housekeeper) runOnce(ctx context.Context) {
	err := h.pool.Do(ctx, func() error {
		deleted, err := h.coord.RunInvalidation(ctx, time.Now())
		if err != nil {
			return err
		}
		if len(deleted) > 0 {
			h.log.Info("housekeeper: expired content removed", "count", len(deleted))
		}
		return nil
	})
	if err != nil {
		h.log.Error("housekeeper: invalidation sweep failed", "error", err)
	}

	if err := h.refreshGauges(ctx); err != nil {
		h.log.Error("housekeeper: gauge refresh failed", "error", err)
	}

	h.tick++
	if h.auditEvery > 0 && h.tick%h.auditEvery == 0 {
		h.runAudit(ctx)
	}
}

func (h *Housekeeper) refreshGauges(ctx context.Context) error {
	var aggs []index.Agg
	err := h.pool.Do(ctx, func() error {
		var groupErr error
		aggs, groupErr = h.coord.GroupBy()
		return groupErr
	})
	if err != nil {
		return err
	}

	current := make(map[[2]string]struct{}, len(aggs))
	for _, a := range aggs {
		label := [2]string{a.ContentType, a.BackendID}
		current[label] = struct{}{}
		h.metrics.SetStoredGauges(a.ContentType, a.BackendID, a.Count, a.SumLength)
	}

	for label := range h.seenLabels {
		if _, ok := current[label]; !ok {
			h.metrics.DeleteStoredGauges(label[0], label[1])
		}
	}
	h.seenLabels = current
	return nil
}

func (h *Housekeeper) runAudit(ctx context.Context) {
	var report *coordinator.Audit
	err := h.pool.Do(ctx, func() error {
		var auditErr error
		report, auditErr = h.coord.RunAudit(ctx)
		return auditErr
	})
	if err != nil {
		h.log.Error("housekeeper: audit failed", "error", err)
		return
	}
	if len(report.OrphanedObjects) > 0 || len(report.OrphanedIndexRows) > 0 {
		h.log.Warn("housekeeper: audit found orphans",
			"orphaned_objects", len(report.OrphanedObjects),
			"orphaned_index_rows", len(report.OrphanedIndexRows),
		)
	}
}
