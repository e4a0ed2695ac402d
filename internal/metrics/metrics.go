// Package metrics holds the Prometheus instruments exposed on /metrics.
// Each Metrics owns its registry, so tests can build as many routers as they
// like without duplicate registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service instruments.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ReadinessChecks *prometheus.CounterVec
	EntitiesCreated prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the instruments and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Cumulative number of HTTP requests by route, method, and status.",
			}, []string{"route", "method", "status"}),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route and method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),

		ReadinessChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readiness_checks_total",
				Help: "Readiness probe outcomes by reported status.",
			}, []string{"status"}),

		EntitiesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "entities_created_total",
				Help: "Cumulative number of entities inserted.",
			}),

		gatherer: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ReadinessChecks,
		m.EntitiesCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
