package lifecycle

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_Recording(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.IncrementPhases(StageRender, "completed")
	pm.IncrementPhases(StageRender, "completed")
	pm.IncrementBackpressure("queue_full")
	pm.UpdateQueueDepth(5)
	pm.UpdateInflightPhases(2)
	pm.RecordPhaseLatency(StageInitialize, 3*time.Millisecond, "success")

	if got := testutil.ToFloat64(pm.phases.WithLabelValues("render", "completed")); got != 2 {
		t.Errorf("phases_total = %v", got)
	}
	if got := testutil.ToFloat64(pm.backpressure.WithLabelValues("queue_full")); got != 1 {
		t.Errorf("backpressure_events_total = %v", got)
	}
	if got := testutil.ToFloat64(pm.queueDepth); got != 5 {
		t.Errorf("queue_depth = %v", got)
	}
	if got := testutil.ToFloat64(pm.inflightPhases); got != 2 {
		t.Errorf("inflight_phases = %v", got)
	}

	if n, err := testutil.GatherAndCount(registry, "lifecycle_phase_latency_ms"); err != nil || n != 1 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestPrometheusMetrics_DisableAndReset(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.Disable()
	pm.IncrementPhases(StageFinalize, "completed")
	pm.UpdateQueueDepth(9)
	if got := testutil.ToFloat64(pm.phases.WithLabelValues("finalize", "completed")); got != 0 {
		t.Errorf("recorded while disabled: %v", got)
	}

	pm.Enable()
	pm.UpdateQueueDepth(9)
	pm.UpdatePoolIdle(StageFinalize, 3)
	pm.Reset()
	if got := testutil.ToFloat64(pm.queueDepth); got != 0 {
		t.Errorf("queue_depth after reset = %v", got)
	}
	if n := testutil.CollectAndCount(pm.poolIdle); n != 0 {
		t.Errorf("pool_idle series after reset = %d", n)
	}
}

func TestPrometheusMetrics_NilReceiver(t *testing.T) {
	var pm *PrometheusMetrics
	pm.IncrementPhases(StageRender, "completed")
	pm.RecordPhaseLatency(StageRender, time.Second, "error")
	pm.UpdateQueueDepth(1)
	pm.UpdateInflightPhases(1)
	pm.UpdatePoolIdle(StageRender, 1)
	pm.IncrementPoolReuse(StageRender)
	pm.IncrementBackpressure("queue_full")
	pm.Disable()
	pm.Enable()
	pm.Reset()
}
