// Package metrics provides Prometheus metrics for Folio.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the versioning and workflow
// engines. A nil *Metrics records nothing.
type Metrics struct {
	// Version history
	VersionsTotal        *prometheus.CounterVec // by outcome: created, coalesced, promoted
	VersionsTrimmedTotal *prometheus.CounterVec // by class: major, minor
	CheckoutsTotal       *prometheus.CounterVec // by action: checkout, checkin, undo
	OperationDuration    *prometheus.HistogramVec

	// Workflow security
	ApprovalDecisionsTotal *prometheus.CounterVec // by result: allowed, denied
	ApprovalCacheHitsTotal prometheus.Counter

	// Scheduled tasks
	PruneRunsTotal *prometheus.CounterVec // by status: ok, error
}

// New creates the metrics and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.VersionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_versions_total",
			Help: "Version history writes by outcome",
		},
		[]string{"outcome"},
	)
	m.VersionsTrimmedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_versions_trimmed_total",
			Help: "Version history entries removed by retention",
		},
		[]string{"class"},
	)
	m.CheckoutsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_checkouts_total",
			Help: "Check-out state transitions",
		},
		[]string{"action"},
	)
	m.OperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_operation_duration_seconds",
			Help:    "Duration of versioning operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	m.ApprovalDecisionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_approval_decisions_total",
			Help: "CanUserApprove evaluations by result",
		},
		[]string{"result"},
	)
	m.ApprovalCacheHitsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_approval_cache_hits_total",
			Help: "CanUserApprove answers served from the operation scope",
		},
	)
	m.PruneRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_prune_runs_total",
			Help: "Retention prune task runs by status",
		},
		[]string{"status"},
	)
	return m
}

// RecordVersion counts a version write.
func (m *Metrics) RecordVersion(outcome string) {
	if m == nil {
		return
	}
	m.VersionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTrimmed counts entries removed by retention.
func (m *Metrics) RecordTrimmed(major bool, n int) {
	if m == nil || n == 0 {
		return
	}
	class := "minor"
	if major {
		class = "major"
	}
	m.VersionsTrimmedTotal.WithLabelValues(class).Add(float64(n))
}

// RecordCheckout counts a check-out state transition.
func (m *Metrics) RecordCheckout(action string) {
	if m == nil {
		return
	}
	m.CheckoutsTotal.WithLabelValues(action).Inc()
}

// ObserveOperation records how long an operation took since start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordApproval counts an approval decision; cached answers also count as
// cache hits.
func (m *Metrics) RecordApproval(allowed, cached bool) {
	if m == nil {
		return
	}
	if cached {
		m.ApprovalCacheHitsTotal.Inc()
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.ApprovalDecisionsTotal.WithLabelValues(result).Inc()
}

// RecordPrune counts a prune task run.
func (m *Metrics) RecordPrune(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PruneRunsTotal.WithLabelValues(status).Inc()
}
