// Package metrics exposes the runner's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collection of all Prometheus collectors the runner updates.
type Metrics struct {
	TasksDispatched  *prometheus.CounterVec
	TasksRunning     *prometheus.GaugeVec
	MemoryGuardTrips prometheus.Counter
	LogFramesDropped *prometheus.CounterVec
	PollDuration     prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates all runner metrics and registers them, together with
// the Go runtime and process collectors, on a registry of its own.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.TasksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brain_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to the supervisor, by project.",
		},
		[]string{"project"},
	)

	m.TasksRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brain_tasks_running",
			Help: "Number of tasks currently running, by project.",
		},
		[]string{"project"},
	)

	m.MemoryGuardTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brain_memory_guard_trips_total",
			Help: "Total number of times the memory guard deferred a dispatch.",
		},
	)

	m.LogFramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brain_log_frames_dropped_total",
			Help: "Total number of log frames dropped because a subscriber's buffer was full.",
		},
		[]string{"subscriber"},
	)

	m.PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brain_poll_duration_seconds",
			Help:    "Duration of a single runner-loop poll tick, across all projects.",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TasksDispatched,
		m.TasksRunning,
		m.MemoryGuardTrips,
		m.LogFramesDropped,
		m.PollDuration,
	)

	return m
}

// Handler returns the Prometheus scrape handler for /metrics, serving this
// Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
