// Package metrics exposes Prometheus collectors for the invoke endpoint, the
// registry and the fan-out.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaharia-lab/notifier/internal/dispatch"
)

const namespace = "notifier"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	registryWrites     *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Invoke calls by method and outcome.",
		}, []string{"method", "outcome"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Invoke call latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		registryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_writes_total",
			Help:      "Persisted subscription mapping writes by operation.",
		}, []string{"op"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Fan-out delivery attempts by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.invocations,
		m.invocationDuration,
		m.registryWrites,
		m.deliveries,
	)
	return m
}

// ObserveInvocation implements dispatch.Observer. Calls to unknown methods
// share one label value.
func (m *Metrics) ObserveInvocation(method, outcome string, d time.Duration) {
	if outcome == dispatch.OutcomeUnknownMethod {
		method = "unknown"
	}
	m.invocations.WithLabelValues(method, outcome).Inc()
	m.invocationDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveRegistryWrite implements registry.WriteObserver.
func (m *Metrics) ObserveRegistryWrite(op string) {
	m.registryWrites.WithLabelValues(op).Inc()
}

// ObserveDelivery implements notification.DeliveryObserver.
func (m *Metrics) ObserveDelivery(status string) {
	m.deliveries.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
