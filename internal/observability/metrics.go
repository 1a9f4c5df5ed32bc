// Package observability holds the Prometheus collectors for module
// executions and authorization decisions.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry   prometheus.Gatherer
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	denials    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors against registerer. A nil registerer
// uses the process-wide default registry, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		})
		return defaultMetrics
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return buildMetrics(registerer, gatherer)
}

// Tracker times one execution from the moment the gate accepts it.
type Tracker struct {
	metrics *Metrics
	module  string
	start   time.Time
}

func (m *Metrics) Track(module string) *Tracker {
	if m == nil {
		return &Tracker{module: module, start: time.Now()}
	}
	return &Tracker{metrics: m, module: module, start: time.Now()}
}

// End records the terminal status. Only statuses that reached the runner
// feed the duration histogram.
func (t *Tracker) End(status string, ran bool) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.executions.WithLabelValues(t.module, status).Inc()
	if ran {
		t.metrics.duration.WithLabelValues(t.module).Observe(time.Since(t.start).Seconds())
	}
}

func (m *Metrics) Denied(role string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(role).Inc()
}

// Handler serves the registry this Metrics was registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func buildMetrics(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptdeck_module_executions_total",
		Help: "Module execution requests partitioned by module and terminal status.",
	}, []string{"module", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scriptdeck_module_execution_duration_seconds",
		Help:    "Wall-clock duration of module scripts that were spawned.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"module"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptdeck_authorization_denials_total",
		Help: "Module access denials partitioned by role.",
	}, []string{"role"})
	registerer.MustRegister(executions, duration, denials)
	return &Metrics{registry: gatherer, executions: executions, duration: duration, denials: denials}
}
