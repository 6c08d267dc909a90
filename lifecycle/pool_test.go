package lifecycle

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPool_ReleaseThenAcquireReusesInstance(t *testing.T) {
	pool := NewPool(0)
	p := pool.Acquire(StageFinalize)
	pool.Release(p)

	if got := pool.Acquire(StageFinalize); got != p {
		t.Fatalf("Acquire returned %p, want released instance %p", got, p)
	}
	if got := pool.Acquire(StageFinalize); got == p {
		t.Fatal("instance handed out twice")
	}

	stats := pool.Stats()
	if stats.Allocated != 2 || stats.Reused != 1 || stats.Released != 1 {
		t.Errorf("stats = %+v, want allocated=2 reused=1 released=1", stats)
	}
}

func TestPool_StagesAreKeptApart(t *testing.T) {
	pool := NewPool(0)
	p := pool.Acquire(StageInitialize)
	pool.Release(p)

	other := pool.Acquire(StageRender)
	if other == p {
		t.Fatal("phase of one stage reused for another")
	}
	if other.Stage() != StageRender {
		t.Errorf("stage = %s, want render", other.Stage())
	}
}

func TestPool_DoubleReleaseIsIgnored(t *testing.T) {
	pool := NewPool(0)
	p := pool.Acquire(StageInitialize)
	pool.Release(p)
	pool.Release(p)

	stats := pool.Stats()
	if stats.Released != 1 || stats.Idle[StageInitialize] != 1 {
		t.Fatalf("stats = %+v, want a single idle phase", stats)
	}
}

func TestPool_MaxIdleDropsExcess(t *testing.T) {
	pool := NewPool(1)
	a, b := pool.Acquire(StageInitialize), pool.Acquire(StageInitialize)
	pool.Release(a)
	pool.Release(b)

	stats := pool.Stats()
	if stats.Idle[StageInitialize] != 1 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v, want idle=1 dropped=1", stats)
	}
}

func TestPool_ReleasedPhaseIsCleared(t *testing.T) {
	e := NewComponent("e")
	pool := NewPool(0)
	lc, err := New(pool, e, "model")
	if err != nil {
		t.Fatal(err)
	}

	p, err := lc.NewPhase(StageInitialize, e, "x", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	pool.Release(p)

	if p.IsPrepared() || p.Element() != nil || p.Lifecycle() != nil || p.Model() != nil {
		t.Fatal("released phase still references its pass")
	}
	if p.State() != StateRecycled {
		t.Errorf("state = %s, want recycled", p.State())
	}

	// A recycled phase can be prepared again.
	again := pool.Acquire(StageInitialize)
	if err := again.Prepare(lc, e, "", nil, nil); err != nil {
		t.Fatalf("Prepare after reuse: %v", err)
	}
}

func TestPool_AcquireInvalidStagePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewPool(0).Acquire(Stage(99))
}

func TestPool_ConcurrentAcquireRelease(t *testing.T) {
	pool := NewPool(0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				stage := Stages()[i%len(Stages())]
				pool.Release(pool.Acquire(stage))
			}
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	if stats.Allocated+stats.Reused != 8*200 {
		t.Errorf("acquisitions = %d, want %d", stats.Allocated+stats.Reused, 8*200)
	}
	idle := 0
	for _, n := range stats.Idle {
		idle += n
	}
	if idle != stats.Allocated {
		t.Errorf("idle = %d, want every allocated phase (%d) back in the pool", idle, stats.Allocated)
	}
}

func TestPool_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)
	pool := NewPool(0).WithMetrics(metrics)

	a := pool.Acquire(StageApplyModel)
	b := pool.Acquire(StageApplyModel)
	pool.Release(a)
	pool.Release(b)
	if got := testutil.ToFloat64(metrics.poolIdle.WithLabelValues("apply_model")); got != 2 {
		t.Errorf("pool_idle = %v, want 2", got)
	}

	pool.Acquire(StageApplyModel)
	if got := testutil.ToFloat64(metrics.poolReuse.WithLabelValues("apply_model")); got != 1 {
		t.Errorf("pool_reuse_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.poolIdle.WithLabelValues("apply_model")); got != 1 {
		t.Errorf("pool_idle = %v, want 1", got)
	}
}

func TestPool_ConcurrentReleaseOfOnePhase(t *testing.T) {
	for round := 0; round < 50; round++ {
		pool := NewPool(0)
		p := pool.Acquire(StageRender)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				pool.Release(p)
			}()
		}
		close(start)
		wg.Wait()

		stats := pool.Stats()
		if stats.Idle[StageRender] != 1 || stats.Released != 1 {
			t.Fatalf("round %d: stats = %+v, want one idle phase", round, stats)
		}
		if a, b := pool.Acquire(StageRender), pool.Acquire(StageRender); a == b {
			t.Fatalf("round %d: instance handed out twice", round)
		}
	}
}
