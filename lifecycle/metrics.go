package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible metrics for lifecycle passes.
//
// Metrics exposed (all namespaced with "lifecycle_"):
//
// 1. inflight_phases (gauge): Phases currently running on a worker.
//
// 2. queue_depth (gauge): Phases waiting in the processor's pending queue.
//
// 3. phase_latency_ms (histogram): Duration of a phase's own task execution,
// from dispatch to processed. Labels: stage, status (success/error).
// Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000].
//
// 4. phases_total (counter): Phases finished. Labels: stage, outcome
// (completed, illegal_state, task_failure, unexpected).
//
// 5. pool_idle (gauge): Idle phases held by the pool. Labels: stage.
//
// 6. pool_reuse_total (counter): Acquisitions served from an idle phase.
// Labels: stage.
//
// 7. backpressure_events_total (counter): Offers rejected because the pending
// queue was full. Labels: reason.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := lifecycle.NewPrometheusMetrics(registry)
//	pool := lifecycle.NewPool(0).WithMetrics(metrics)
//	lc, _ := lifecycle.New(pool, view, model, lifecycle.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe on a nil receiver, which records nothing.
type PrometheusMetrics struct {
	inflightPhases prometheus.Gauge
	queueDepth     prometheus.Gauge
	poolIdle       *prometheus.GaugeVec

	phaseLatency *prometheus.HistogramVec

	phases       *prometheus.CounterVec
	poolReuse    *prometheus.CounterVec
	backpressure *prometheus.CounterVec

	registry prometheus.Registerer

	// mu serializes Reset against itself.
	mu      sync.Mutex
	enabled atomic.Bool
}

// NewPrometheusMetrics creates and registers all lifecycle metrics with the
// provided registry. A nil registry selects prometheus.DefaultRegisterer.
//
// Registering twice on the same registry panics, as promauto does; use a
// dedicated prometheus.NewRegistry() per test.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{registry: registry}
	pm.enabled.Store(true)

	pm.inflightPhases = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "lifecycle",
		Name:      "inflight_phases",
		Help:      "Current number of phases running on a worker",
	})

	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "lifecycle",
		Name:      "queue_depth",
		Help:      "Number of phases waiting in the pending queue",
	})

	pm.phaseLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lifecycle",
		Name:      "phase_latency_ms",
		Help:      "Phase task execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"stage", "status"}) // status: success, error

	pm.phases = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifecycle",
		Name:      "phases_total",
		Help:      "Phases finished, by stage and outcome",
	}, []string{"stage", "outcome"})

	pm.poolIdle = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lifecycle",
		Name:      "pool_idle",
		Help:      "Idle phases held by the phase pool",
	}, []string{"stage"})

	pm.poolReuse = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifecycle",
		Name:      "pool_reuse_total",
		Help:      "Phase acquisitions served from an idle pooled phase",
	}, []string{"stage"})

	pm.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifecycle",
		Name:      "backpressure_events_total",
		Help:      "Offers rejected because the pending queue was full",
	}, []string{"reason"}) // reason: queue_full

	return pm
}

func (pm *PrometheusMetrics) on() bool {
	return pm != nil && pm.enabled.Load()
}

// RecordPhaseLatency records the execution duration of a phase.
//
// status is "success" or "error".
func (pm *PrometheusMetrics) RecordPhaseLatency(stage Stage, latency time.Duration, status string) {
	if !pm.on() {
		return
	}
	pm.phaseLatency.WithLabelValues(stage.String(), status).Observe(float64(latency.Milliseconds()))
}

// IncrementPhases counts a finished phase.
func (pm *PrometheusMetrics) IncrementPhases(stage Stage, outcome string) {
	if !pm.on() {
		return
	}
	pm.phases.WithLabelValues(stage.String(), outcome).Inc()
}

// UpdateQueueDepth sets the number of phases waiting in the pending queue.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.on() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightPhases sets the number of phases currently running.
func (pm *PrometheusMetrics) UpdateInflightPhases(count int) {
	if !pm.on() {
		return
	}
	pm.inflightPhases.Set(float64(count))
}

// UpdatePoolIdle sets the number of idle pooled phases for stage.
func (pm *PrometheusMetrics) UpdatePoolIdle(stage Stage, idle int) {
	if !pm.on() {
		return
	}
	pm.poolIdle.WithLabelValues(stage.String()).Set(float64(idle))
}

// IncrementPoolReuse counts an acquisition served from the pool.
func (pm *PrometheusMetrics) IncrementPoolReuse(stage Stage) {
	if !pm.on() {
		return
	}
	pm.poolReuse.WithLabelValues(stage.String()).Inc()
}

// IncrementBackpressure counts a rejected offer.
func (pm *PrometheusMetrics) IncrementBackpressure(reason string) {
	if !pm.on() {
		return
	}
	pm.backpressure.WithLabelValues(reason).Inc()
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	if pm != nil {
		pm.enabled.Store(false)
	}
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	if pm != nil {
		pm.enabled.Store(true)
	}
}

// Reset clears gauge values. Counters and histograms are cumulative and are
// left untouched. This does not unregister metrics from the registry.
func (pm *PrometheusMetrics) Reset() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.inflightPhases.Set(0)
	pm.queueDepth.Set(0)
	pm.poolIdle.Reset()
}
