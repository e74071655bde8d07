// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Oracle metrics
	OracleQuoteLatency *prometheus.HistogramVec
	OracleQuoteErrors  *prometheus.CounterVec
	OracleFeedUpdates  prometheus.Counter

	// Settlement metrics
	PairingsTotal    prometheus.Counter
	SettlementsTotal prometheus.Counter
	SettledVolume    *prometheus.CounterVec
	RedemptionsTotal prometheus.Counter

	// Event metrics
	EventsPublished    prometheus.Counter
	EventPublishErrors prometheus.Counter
	LastPublishedEvent prometheus.Gauge

	// Audit metrics
	AuditRuns       *prometheus.CounterVec
	AuditViolations prometheus.Gauge

	// Health metrics
	LastSuccessfulSettle prometheus.Gauge
	LastAudit            prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "nomisma_settlement"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "operations_total",
			Help:      "Total number of operations by name and result",
		}, []string{"op", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "operation_duration_seconds",
			Help:      "Operation duration in seconds, including the transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		OracleQuoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "quote_latency_seconds",
			Help:      "Rate quote latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		OracleQuoteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "quote_errors_total",
			Help:      "Total number of failed rate quotes",
		}, []string{"source"}),
		OracleFeedUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "feed_updates_total",
			Help:      "Total number of rate updates received from the feed",
		}),

		PairingsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "pairings_total",
			Help:      "Total number of claim pairings",
		}),
		SettlementsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Total number of settled pairings",
		}),
		SettledVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settled_volume_total",
			Help:      "Native collateral settled, by leg",
		}, []string{"leg"}),
		RedemptionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "redemptions_total",
			Help:      "Total number of token redemptions",
		}),

		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events delivered to the sink",
		}),
		EventPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of failed event deliveries",
		}),
		LastPublishedEvent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "last_published_seq",
			Help:      "Sequence number of the last delivered event",
		}),
		AuditRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Total number of invariant audits by result",
		}, []string{"result"}),
		AuditViolations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "violations",
			Help:      "Invariant violations found by the last audit",
		}),
		LastSuccessfulSettle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_settlement_timestamp",
			Help:      "Unix timestamp of last successful settlement",
		}),
		LastAudit: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_audit_timestamp",
			Help:      "Unix timestamp of the last completed audit",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordOperation records one orchestrated operation.
func (m *Metrics) RecordOperation(op string, seconds float64, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(seconds)
}

// RecordQuote records a rate quote from source.
func (m *Metrics) RecordQuote(source string, seconds float64, err error) {
	m.OracleQuoteLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		m.OracleQuoteErrors.WithLabelValues(source).Inc()
	}
}

// RecordSettlement records a settled pairing and its native legs.
func (m *Metrics) RecordSettlement(longLeg, shortLeg float64, unixSeconds int64) {
	m.SettlementsTotal.Inc()
	m.SettledVolume.WithLabelValues("long").Add(longLeg)
	m.SettledVolume.WithLabelValues("short").Add(shortLeg)
	m.LastSuccessfulSettle.Set(float64(unixSeconds))
}

// RecordPublish records delivery of events up to lastSeq.
func (m *Metrics) RecordPublish(n int, lastSeq int64, err error) {
	if err != nil {
		m.EventPublishErrors.Inc()
		return
	}
	m.EventsPublished.Add(float64(n))
	if n > 0 {
		m.LastPublishedEvent.Set(float64(lastSeq))
	}
}

// RecordAudit records one audit run. Violations count as a failed run.
func (m *Metrics) RecordAudit(violations int, unixSeconds int64, err error) {
	if err != nil {
		m.AuditRuns.WithLabelValues(ResultError).Inc()
		return
	}
	result := ResultOK
	if violations > 0 {
		result = ResultError
	}
	m.AuditRuns.WithLabelValues(result).Inc()
	m.AuditViolations.Set(float64(violations))
	m.LastAudit.Set(float64(unixSeconds))
}
