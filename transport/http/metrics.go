package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// Metrics collects integration counters exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	reconciliationsTotal *prometheus.CounterVec
	discrepanciesTotal   *prometheus.CounterVec
	jobsTotal            *prometheus.CounterVec
	syncDuration         prometheus.Histogram
}

// NewMetrics creates and registers the service metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		reconciliationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Reconciliation runs by entity type and outcome.",
		}, []string{"entity_type", "status"}),
		discrepanciesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discrepancies_total",
			Help: "Detected discrepancies by severity.",
		}, []string{"severity"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_jobs_total",
			Help: "Sync job transitions by resulting status.",
		}, []string{"status"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciliation_duration_seconds",
			Help:    "Wall-clock duration of reconciliation runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.reconciliationsTotal,
		m.discrepanciesTotal,
		m.jobsTotal,
		m.syncDuration,
	)
	return m
}

// Registry exposes the private registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReconciliation records one finalized reconciliation run.
func (m *Metrics) ObserveReconciliation(report *entity.ReconciliationReport) {
	m.reconciliationsTotal.WithLabelValues(string(report.EntityType), string(report.Status)).Inc()
	for severity, count := range report.CountsBySeverity {
		m.discrepanciesTotal.WithLabelValues(string(severity)).Add(float64(count))
	}
	m.syncDuration.Observe(report.Duration.Seconds())
}

// ObserveJob records one job transition.
func (m *Metrics) ObserveJob(status entity.JobStatus) {
	m.jobsTotal.WithLabelValues(string(status)).Inc()
}
