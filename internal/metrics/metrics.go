// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnknownSlug labels triggers whose slug is not registered, so arbitrary
// caller input never becomes a label value.
const UnknownSlug = "unknown"

// Metrics groups the collectors registered for one gateway instance.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Trigger metrics
	TriggersTotal   *prometheus.CounterVec
	TriggerDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimited *prometheus.CounterVec

	// Audit metrics
	AuditErrors prometheus.Counter
}

// New registers the gateway collectors on reg. A nil reg gets a fresh
// registry, which keeps tests and embedded gateways isolated.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		TriggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_gateway_triggers_total",
				Help: "Total number of workflow triggers by outcome",
			},
			[]string{"slug", "outcome"},
		),

		TriggerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_gateway_trigger_duration_seconds",
				Help:    "Duration of outbound webhook calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"slug", "outcome"},
		),

		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_gateway_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"reason"},
		),

		AuditErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "workflow_gateway_audit_errors_total",
				Help: "Total number of failed trigger audit writes",
			},
		),
	}
}

// ObserveTrigger records one trigger outcome.
func (m *Metrics) ObserveTrigger(slug, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if slug == "" {
		slug = UnknownSlug
	}
	m.TriggersTotal.WithLabelValues(slug, outcome).Inc()
	m.TriggerDuration.WithLabelValues(slug, outcome).Observe(elapsed.Seconds())
}

// ObserveRateLimited counts a rejected request. reason is "exceeded" or
// "unavailable".
func (m *Metrics) ObserveRateLimited(reason string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(reason).Inc()
}

// ObserveAuditError counts a failed audit write.
func (m *Metrics) ObserveAuditError() {
	if m == nil {
		return
	}
	m.AuditErrors.Inc()
}

// Handler serves the Prometheus exposition format for this instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
