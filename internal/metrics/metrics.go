// Package metrics exposes Prometheus instrumentation for browsing sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficpilot/internal/models"
)

const namespace = "trafficpilot"

// Metrics holds session collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted    *prometheus.CounterVec
	sessionsFinished   *prometheus.CounterVec
	sessionsActive     prometheus.Gauge
	sessionDuration    *prometheus.HistogramVec
	bestEffortFailures *prometheus.CounterVec
	scrollDistance     prometheus.Histogram
	startsRejected     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions accepted for execution.",
		}, []string{"target"}),
		sessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Sessions that reached a terminal status.",
		}, []string{"target", "status"}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions between start and their terminal status.",
		}),
		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from start to terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 180, 300},
		}, []string{"target"}),
		bestEffortFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_effort_failures_total",
			Help:      "Optional interactions that failed without ending the session.",
		}, []string{"action"}),
		scrollDistance: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scroll_distance_pixels",
			Help:      "Distance of each simulated scroll.",
			Buckets:   []float64{100, 200, 400, 800, 1200, 1500, 2000},
		}),
		startsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "starts_rejected_total",
			Help:      "Start requests refused at the boundary.",
		}, []string{"reason"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted counts a session entering the orchestrator
func (m *Metrics) SessionStarted(target models.Target) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(targetLabel(target)).Inc()
	m.sessionsActive.Inc()
}

// SessionFinished records the terminal status and the session's wall time
func (m *Metrics) SessionFinished(target models.Target, status models.Status, d time.Duration) {
	if m == nil {
		return
	}
	label := targetLabel(target)
	m.sessionsFinished.WithLabelValues(label, string(status)).Inc()
	m.sessionDuration.WithLabelValues(label).Observe(d.Seconds())
	m.sessionsActive.Dec()
}

// BestEffortFailed counts an optional interaction that failed
func (m *Metrics) BestEffortFailed(action string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(action).Inc()
}

// Scrolled observes one simulated scroll distance
func (m *Metrics) Scrolled(px int) {
	if m == nil {
		return
	}
	m.scrollDistance.Observe(float64(px))
}

// StartRejected counts a start request refused at the boundary
func (m *Metrics) StartRejected(reason string) {
	if m == nil {
		return
	}
	m.startsRejected.WithLabelValues(reason).Inc()
}

// targetLabel keeps label cardinality bounded for arbitrary client input
func targetLabel(t models.Target) string {
	for _, known := range models.KnownTargets() {
		if t == known {
			return string(t)
		}
	}
	return "unknown"
}
