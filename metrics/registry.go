// Package metrics exposes the Prometheus counters/gauges/histograms
// for task events, cache hit ratio, hook timing and resource samples;
// the cmd/agentcore wiring feeds them by calling Registry.Record
// directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the process's Prometheus collectors and routes named
// metric samples to the right instrument by name pattern, mirroring
// telemetry.Provider's RecordMetric contract without this package
// depending on otel.
type Registry struct {
	reg *prometheus.Registry

	taskEvents      *prometheus.CounterVec
	cacheHitRatio   prometheus.Gauge
	hookExecutionMs *prometheus.HistogramVec
	resourceSample  *prometheus.GaugeVec
}

// New constructs a Registry with every instrument pre-registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		taskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_task_events_total",
			Help: "Count of task lifecycle events by event name.",
		}, []string{"event"}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_cache_hit_ratio",
			Help: "Response cache hit ratio, updated on each Stats() poll.",
		}),
		hookExecutionMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_hook_execution_ms",
			Help:    "Hook execution duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"hook"}),
		resourceSample: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentcore_resource_guard_sample",
			Help: "Most recent resource guard sample.",
		}, []string{"resource"}),
	}

	reg.MustRegister(r.taskEvents, r.cacheHitRatio, r.hookExecutionMs, r.resourceSample)
	return r
}

// Record implements telemetry.MetricSink: it routes a (name, value,
// labels) sample to the matching instrument by name.
func (r *Registry) Record(name string, value float64, labels map[string]string) {
	switch name {
	case "task_event":
		r.taskEvents.WithLabelValues(labels["event"]).Inc()
	case "cache_hit_ratio":
		r.cacheHitRatio.Set(value)
	case "hook_execution_ms":
		r.hookExecutionMs.WithLabelValues(labels["hook"]).Observe(value)
	case "resource_guard_sample":
		r.resourceSample.WithLabelValues(labels["resource"]).Set(value)
	}
}

// Handler returns the HTTP handler that serves /metrics in Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
