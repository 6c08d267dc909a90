package lifecycle

import "sync"

// DefaultMaxIdle is the default number of idle phases kept per stage.
const DefaultMaxIdle = 1024

// Pool recycles Phase instances across passes.
//
// The pool is an explicit arena keyed by stage rather than a sync.Pool so that
// reuse does not depend on garbage collection timing: large trees processed
// repeatedly per request draw the same instances pass after pass. A pool is
// safe for concurrent use and is normally shared by every Lifecycle in a
// process.
type Pool struct {
	mu      sync.Mutex
	free    [numStages][]*Phase
	maxIdle int
	stats   PoolStats
	metrics *PrometheusMetrics
}

// PoolStats summarizes pool activity.
type PoolStats struct {
	// Allocated counts phases created because no idle phase was available.
	Allocated int

	// Reused counts acquisitions served from an idle phase.
	Reused int

	// Released counts phases returned to the pool.
	Released int

	// Dropped counts released phases discarded because the stage's idle list
	// was full.
	Dropped int

	// Idle is the number of idle phases per stage.
	Idle map[Stage]int
}

// NewPool creates a pool that keeps at most maxIdle idle phases per stage.
// A non-positive maxIdle selects DefaultMaxIdle.
func NewPool(maxIdle int) *Pool {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &Pool{maxIdle: maxIdle}
}

// WithMetrics attaches metrics reporting pool occupancy and reuse. It returns
// the pool for chaining.
func (pl *Pool) WithMetrics(m *PrometheusMetrics) *Pool {
	pl.mu.Lock()
	pl.metrics = m
	pl.mu.Unlock()
	return pl
}

// Acquire returns an unprepared phase for stage.
func (pl *Pool) Acquire(stage Stage) *Phase {
	if !stage.Valid() {
		panic("lifecycle: acquire of invalid stage " + stage.String())
	}

	pl.mu.Lock()
	free := pl.free[stage]
	if n := len(free); n > 0 {
		p := free[n-1]
		free[n-1] = nil
		pl.free[stage] = free[:n-1]
		p.pooled = false
		pl.stats.Reused++
		idle := len(pl.free[stage])
		m := pl.metrics
		pl.mu.Unlock()

		if m != nil {
			m.IncrementPoolReuse(stage)
			m.UpdatePoolIdle(stage, idle)
		}
		return p
	}
	pl.stats.Allocated++
	pl.mu.Unlock()

	return newPhase(stage)
}

// Release recycles p and returns it to the pool. Releasing a phase that is
// already idle, or that was dropped because the idle list was full, is a
// no-op.
func (pl *Pool) Release(p *Phase) {
	if p == nil {
		return
	}
	// Claim the phase before recycling so concurrent releases of the same
	// instance cannot both return it to the free list.
	pl.mu.Lock()
	if p.pooled {
		pl.mu.Unlock()
		return
	}
	p.pooled = true
	pl.mu.Unlock()

	p.recycle()

	pl.mu.Lock()
	pl.stats.Released++
	if len(pl.free[p.stage]) >= pl.maxIdle {
		pl.stats.Dropped++
		pl.mu.Unlock()
		return
	}
	pl.free[p.stage] = append(pl.free[p.stage], p)
	idle := len(pl.free[p.stage])
	m := pl.metrics
	pl.mu.Unlock()

	if m != nil {
		m.UpdatePoolIdle(p.stage, idle)
	}
}

// Stats returns a snapshot of pool activity.
func (pl *Pool) Stats() PoolStats {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	s := pl.stats
	s.Idle = make(map[Stage]int, numStages)
	for stage := Stage(0); stage < numStages; stage++ {
		s.Idle[stage] = len(pl.free[stage])
	}
	return s
}
