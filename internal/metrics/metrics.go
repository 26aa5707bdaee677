// Package metrics exposes Prometheus counters and histograms for certificate
// fetches and pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	runTotal      *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  prometheus.Gauge
}

// New registers every collector under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificate_fetch_total",
			Help:      "Certificate fetches by category and outcome.",
		}, []string{"category", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "certificate_fetch_duration_seconds",
			Help:      "Duration of one certificate fetch, download included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"category"}),
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificate_runs_total",
			Help:      "Finished pipeline runs by final state.",
		}, []string{"state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "certificate_run_duration_seconds",
			Help:      "Duration of one pipeline run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"state"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "certificate_runs_in_flight",
			Help:      "Pipeline runs currently executing.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchTotal, m.fetchDuration, m.runTotal, m.runDuration, m.runsInFlight,
	)
	return m
}

// ObserveFetch records one fetch.
func (m *Metrics) ObserveFetch(category, outcome string, elapsed time.Duration) {
	m.fetchTotal.WithLabelValues(category, outcome).Inc()
	m.fetchDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// RunStarted increments the in-flight gauge.
func (m *Metrics) RunStarted() {
	m.runsInFlight.Inc()
}

// RunFinished records a finished run.
func (m *Metrics) RunFinished(state string, elapsed time.Duration) {
	m.runsInFlight.Dec()
	m.runTotal.WithLabelValues(state).Inc()
	m.runDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
