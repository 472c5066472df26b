// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors updated by handlers and services.
type Metrics struct {
	registry *prometheus.Registry

	// TokenRequests counts token endpoint calls by endpoint and outcome.
	TokenRequests *prometheus.CounterVec

	// IdentityWrites counts persisted identity mutations by operation and role.
	IdentityWrites *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ustoz",
			Name:      "token_requests_total",
			Help:      "Token endpoint requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		IdentityWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ustoz",
			Name:      "identity_writes_total",
			Help:      "Persisted identity mutations by operation and role.",
		}, []string{"operation", "role"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TokenRequests,
		m.IdentityWrites,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
