// Package metrics exports authentication counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ar "github.com/panyam/authrepo"
)

// Metrics implements ar.AuthObserver.
type Metrics struct {
	registry *prometheus.Registry

	AuthAttemptsTotal *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
}

var _ ar.AuthObserver = (*Metrics)(nil)

// New creates the collectors on a fresh registry along with the standard Go
// and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(registry)
}

// NewWithRegistry registers the collectors on registry.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authrepo_authentication_attempts_total",
				Help: "Total number of authentication attempts by method and result",
			},
			[]string{"method", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authrepo_http_requests_total",
				Help: "Total number of HTTP requests by status code and method",
			},
			[]string{"code", "method"},
		),
	}
	registry.MustRegister(m.AuthAttemptsTotal)
	registry.MustRegister(m.HTTPRequestsTotal)
	return m
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveAuthentication counts one attempt.
func (m *Metrics) ObserveAuthentication(method string, success bool) {
	m.AuthAttemptsTotal.WithLabelValues(method, result(success)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Instrument counts requests passing through next.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.HTTPRequestsTotal, next)
}
