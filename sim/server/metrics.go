package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qca-lab/qca-sim/sim"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	queries     *prometheus.CounterVec
	bytesServed prometheus.Counter
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	errors      *prometheus.CounterVec
}

// NewMetrics registers every collector plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qcasim",
			Name:      "queries_total",
			Help:      "Sample queries answered, by HTTP status.",
		}, []string{"status"}),
		bytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qcasim",
			Name:      "query_bytes_total",
			Help:      "Raw sample bytes returned by successful queries.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qcasim",
			Name:      "runs_total",
			Help:      "Pipeline runs by model and outcome.",
		}, []string{"model", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qcasim",
			Name:      "run_duration_seconds",
			Help:      "Wall time from launch to persisted store.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"model"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qcasim",
			Name:      "errors_total",
			Help:      "Errors surfaced to callers, by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.queries, m.bytesServed, m.runs, m.runDuration, m.errors,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveQuery counts one query response.
func (m *Metrics) ObserveQuery(status, bytes int, err error) {
	m.queries.WithLabelValues(strconv.Itoa(status)).Inc()
	if err != nil {
		m.ObserveError(err)
		return
	}
	m.bytesServed.Add(float64(bytes))
}

// ObserveRun matches pipeline.Executor.OnFinish.
func (m *Metrics) ObserveRun(modelID string, elapsed time.Duration, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		m.ObserveError(err)
	} else {
		m.runDuration.WithLabelValues(modelID).Observe(elapsed.Seconds())
	}
	m.runs.WithLabelValues(modelID, outcome).Inc()
}

// ObserveError counts err under its kind.
func (m *Metrics) ObserveError(err error) {
	m.errors.WithLabelValues(sim.KindOf(err)).Inc()
}
