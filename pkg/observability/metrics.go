package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authorization metrics
	DecisionsTotal     *prometheus.CounterVec
	DecisionDuration   prometheus.Histogram
	DecisionCacheTotal *prometheus.CounterVec

	// Administration metrics
	AdminMutationsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal  *prometheus.CounterVec
	AuditPrunedTotal  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsdeck_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"outcome", "reason"},
		),
		DecisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "opsdeck_authz_decision_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		DecisionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsdeck_authz_decision_cache_total",
				Help: "Decision cache lookups by result",
			},
			[]string{"result"},
		),
		AdminMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsdeck_authz_admin_mutations_total",
				Help: "Total number of entitlement graph mutations",
			},
			[]string{"operation"},
		),
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsdeck_audit_events_total",
				Help: "Total number of recorded audit events",
			},
			[]string{"event_type", "status"},
		),
		AuditPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "opsdeck_audit_pruned_total",
				Help: "Total number of audit events removed by retention pruning",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.DecisionCacheTotal,
		m.AdminMutationsTotal,
		m.AuditEventsTotal,
		m.AuditPrunedTotal,
	)

	return m
}

// ObserveDecision records one authorization decision.
func (m *Metrics) ObserveDecision(granted bool, reason string, d time.Duration) {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	m.DecisionsTotal.WithLabelValues(outcome, reason).Inc()
	m.DecisionDuration.Observe(d.Seconds())
}

// CountDecisionCache records one decision cache lookup.
func (m *Metrics) CountDecisionCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DecisionCacheTotal.WithLabelValues(result).Inc()
}

// CountAdminMutation records one entitlement graph mutation.
func (m *Metrics) CountAdminMutation(operation string) {
	m.AdminMutationsTotal.WithLabelValues(operation).Inc()
}

// CountAuditEvent records one audit trail write.
func (m *Metrics) CountAuditEvent(eventType, status string) {
	m.AuditEventsTotal.WithLabelValues(eventType, status).Inc()
}

// CountAuditPruned records audit events removed by retention pruning.
func (m *Metrics) CountAuditPruned(n int64) {
	m.AuditPrunedTotal.Add(float64(n))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
