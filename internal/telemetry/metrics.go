// Package telemetry holds the Prometheus collectors exposed on the metrics
// listener. HTTP metrics are labelled by chi route pattern, not the raw URL,
// so entity IDs in paths do not blow up label cardinality.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audit record outcomes.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// AuditRecordsTotal counts audit writes by entity type, action and result.
	AuditRecordsTotal *prometheus.CounterVec
	// AuditQueriesTotal counts timeline reads by query shape and result.
	AuditQueriesTotal *prometheus.CounterVec
	// AuditPublishErrorsTotal counts live-feed publish failures.
	AuditPublishErrorsTotal prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasktrail_http_requests_total",
				Help: "Total HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasktrail_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasktrail_audit_records_total",
				Help: "Audit entries recorded, by entity type, action and result.",
			},
			[]string{"entity_type", "action", "result"},
		),
		AuditQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasktrail_audit_queries_total",
				Help: "Audit timeline queries, by query shape and result.",
			},
			[]string{"query", "result"},
		),
		AuditPublishErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tasktrail_audit_publish_errors_total",
				Help: "Audit live-feed publish failures.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuditRecordsTotal,
		m.AuditQueriesTotal,
		m.AuditPublishErrorsTotal,
	)

	return m
}

// Handler serves the metrics in the Prometheus text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
