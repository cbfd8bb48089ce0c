// Package metrics registers the Prometheus collectors settld exposes on
// GET /metrics, grounded on the registry + labeled-vector shape used by the
// rest of the retrieval pack's metrics packages (r3e-network's
// pkg/metrics.go): one package-level Registry, NewXxxVec collectors with a
// namespace/subsystem, and small typed methods so call sites never touch
// prometheus label strings directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector settld's workers and HTTP layer report
// through, registered against its own Registry so /metrics never leaks
// process-default collectors a tenant shouldn't see.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	monthCloseBlocked *prometheus.CounterVec
	maintenanceRuns   *prometheus.CounterVec
	retentionPurged   *prometheus.CounterVec
	deliveryAttempts  *prometheus.CounterVec
	outboxDLQ         *prometheus.CounterVec
	outboxLag         *prometheus.GaugeVec
}

// New constructs and registers every settld collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settld",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settld",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		monthCloseBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settld",
			Subsystem: "monthclose",
			Name:      "month_close_blocked_total",
			Help:      "Total month-close attempts blocked by hold policy or the account-map gate.",
		}, []string{"reason"}),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settld",
			Subsystem: "maintenance",
			Name:      "maintenance_runs_total",
			Help:      "Total maintenance sweeps run, by kind.",
		}, []string{"kind"}),
		retentionPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settld",
			Subsystem: "maintenance",
			Name:      "retention_purged_total",
			Help:      "Total rows purged by retention cleanup, by table.",
		}, []string{"table"}),
		deliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settld",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total delivery attempts, by destination kind and outcome.",
		}, []string{"kind", "outcome"}),
		outboxDLQ: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settld",
			Subsystem: "outbox",
			Name:      "dlq_total",
			Help:      "Total messages moved to the dead-letter queue, by topic.",
		}, []string{"topic"}),
		outboxLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "settld",
			Subsystem: "outbox",
			Name:      "pending_age_seconds",
			Help:      "Age in seconds of the oldest pending message, by topic.",
		}, []string{"topic"}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.monthCloseBlocked, m.maintenanceRuns,
		m.retentionPurged, m.deliveryAttempts, m.outboxDLQ, m.outboxLag)

	return m
}

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// Inc satisfies workers.MonthCloseBlockedCounter.
func (m *Metrics) Inc(reason string) {
	m.monthCloseBlocked.WithLabelValues(reason).Inc()
}

// IncMaintenanceRun satisfies workers.RetentionCounters.
func (m *Metrics) IncMaintenanceRun(kind string) {
	m.maintenanceRuns.WithLabelValues(kind).Inc()
}

// AddPurged satisfies workers.RetentionCounters.
func (m *Metrics) AddPurged(table string, n int) {
	m.retentionPurged.WithLabelValues(table).Add(float64(n))
}

// ObserveDelivery records one delivery attempt outcome.
func (m *Metrics) ObserveDelivery(kind, outcome string) {
	m.deliveryAttempts.WithLabelValues(kind, outcome).Inc()
}

// IncDLQ records one message moved to the dead-letter queue.
func (m *Metrics) IncDLQ(topic string) {
	m.outboxDLQ.WithLabelValues(topic).Inc()
}

// SetOutboxLag records the current oldest-pending age for a topic.
func (m *Metrics) SetOutboxLag(topic string, seconds float64) {
	m.outboxLag.WithLabelValues(topic).Set(seconds)
}
