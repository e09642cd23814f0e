// Package metrics provides Prometheus instrumentation for the KigaliSim
// engine (spec.md §5 concurrency instrumentation, C16): scenarios run,
// operations executed, recalc invocations, and worker pool queue depth.
//
// Grounded on the teacher's own use of client_golang (a registry plus
// promhttp.Handler, see internal/observability/metrics_handler.go), but
// built around the engine's own counters/histograms/gauges rather than
// HTTP request metrics — this engine has no HTTP surface, so Metrics.Handler
// exists to let a caller mount it on whatever server they run (e.g. the
// CLI facade, if invoked as a long-running pool worker), without this
// package assuming one exists.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors the engine registers.
type Metrics struct {
	registry *prometheus.Registry

	ScenariosRun          *prometheus.CounterVec
	ScenarioDuration      *prometheus.HistogramVec
	OperationsExecuted    *prometheus.CounterVec
	RecalcInvocations     *prometheus.CounterVec
	PoolQueueDepth        prometheus.Gauge
	PoolWorkersActive     prometheus.Gauge
	RunLockSkips          prometheus.Counter
	ConverterCacheHits    prometheus.Counter
	ConverterCacheMisses  prometheus.Counter
}

// New creates and registers all engine metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry)
}

// NewWithRegistry creates and registers all engine metrics on the given
// registry. A nil registry gets a fresh one.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		ScenariosRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kigalisim_scenarios_run_total",
			Help: "Total scenario/trial runs completed, by outcome.",
		}, []string{"outcome"}),
		ScenarioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kigalisim_scenario_duration_seconds",
			Help:    "Wall-clock duration of a single scenario/trial run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scenario"}),
		OperationsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kigalisim_operations_executed_total",
			Help: "Total Operation executions, by kind.",
		}, []string{"kind"}),
		RecalcInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kigalisim_recalc_invocations_total",
			Help: "Total recalc function invocations, by propagation mode.",
		}, []string{"mode"}),
		PoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kigalisim_pool_queue_depth",
			Help: "Current depth of the ParallelSimulationExecutor task queue.",
		}),
		PoolWorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kigalisim_pool_workers_active",
			Help: "Number of scenario workers currently executing a run.",
		}),
		RunLockSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kigalisim_run_lock_skips_total",
			Help: "Scenario tasks skipped because a distributed run lock was already held.",
		}),
		ConverterCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kigalisim_converter_cache_hits_total",
			Help: "UnitConverter cache hits.",
		}),
		ConverterCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kigalisim_converter_cache_misses_total",
			Help: "UnitConverter cache misses.",
		}),
	}

	registry.MustRegister(
		m.ScenariosRun,
		m.ScenarioDuration,
		m.OperationsExecuted,
		m.RecalcInvocations,
		m.PoolQueueDepth,
		m.PoolWorkersActive,
		m.RunLockSkips,
		m.ConverterCacheHits,
		m.ConverterCacheMisses,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format, for a caller to mount on its own server.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordScenarioRun records the outcome and duration of one scenario/trial run.
// Nil-safe: a nil Metrics makes this a no-op, so instrumentation is always
// optional for callers.
func (m *Metrics) RecordScenarioRun(scenario, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ScenariosRun.WithLabelValues(outcome).Inc()
	m.ScenarioDuration.WithLabelValues(scenario).Observe(duration.Seconds())
}

// RecordOperation increments the operation-kind counter.
func (m *Metrics) RecordOperation(kind string) {
	if m == nil {
		return
	}
	m.OperationsExecuted.WithLabelValues(kind).Inc()
}

// RecordRecalc increments the recalc-invocation counter for a propagation mode.
func (m *Metrics) RecordRecalc(mode string) {
	if m == nil {
		return
	}
	m.RecalcInvocations.WithLabelValues(mode).Inc()
}

// SetQueueDepth sets the current task-queue depth gauge.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.PoolQueueDepth.Set(float64(depth))
}

// SetWorkersActive sets the current active-worker gauge.
func (m *Metrics) SetWorkersActive(n int) {
	if m == nil {
		return
	}
	m.PoolWorkersActive.Set(float64(n))
}

// RecordRunLockSkip increments the run-lock-skip counter.
func (m *Metrics) RecordRunLockSkip() {
	if m == nil {
		return
	}
	m.RunLockSkips.Inc()
}

// RecordConverterCache records a cache hit or miss for UnitConverter lookups.
func (m *Metrics) RecordConverterCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ConverterCacheHits.Inc()
		return
	}
	m.ConverterCacheMisses.Inc()
}
