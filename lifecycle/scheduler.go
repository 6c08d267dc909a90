package lifecycle

import (
	"container/heap"
	"context"
	"sync"
)

// priority classes of pending phases; lower dispatches first.
const (
	priorityChained = 0
	priorityOffered = 1
)

// workItem is a pending phase with its dispatch order.
type workItem struct {
	phase    *Phase
	priority int
	seq      int64
}

// workHeap implements heap.Interface ordering work items by priority class,
// then by sequence.
type workHeap []workItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h workHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *workHeap) Push(x interface{}) {
	*h = append(*h, x.(workItem))
}

func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = workItem{}
	*h = old[0 : n-1]
	return item
}

// Frontier is the pending-phase queue shared by the processor's workers.
//
// Chained phases (Push) dispatch before offered phases (Offer). Among chained
// phases the most recently pushed dispatches first; among offered phases the
// oldest dispatches first, which services sibling subtrees breadth-first.
//
// The frontier tracks phases handed out by Dequeue until Done is called for
// them, so it can tell when no work is queued and none is running. At that
// point no further work can appear and every blocked Dequeue returns.
//
// Thread-safety: All methods are safe for concurrent use by multiple goroutines.
type Frontier struct {
	mu       sync.Mutex
	heap     workHeap
	seq      int64
	inflight int
	maxDepth int

	ready    chan struct{} // capacity 1: work may be available
	idle     chan struct{} // closed once the frontier drains
	idleOnce sync.Once
}

// NewFrontier creates an empty frontier. A positive maxDepth bounds the number
// of queued phases; Enqueue beyond it fails with ErrBackpressure.
func NewFrontier(maxDepth int) *Frontier {
	f := &Frontier{
		heap:     make(workHeap, 0),
		maxDepth: maxDepth,
		ready:    make(chan struct{}, 1),
		idle:     make(chan struct{}),
	}
	heap.Init(&f.heap)
	return f
}

// Offer queues an ordinary successor phase.
func (f *Frontier) Offer(p *Phase) error {
	return f.enqueue(p, priorityOffered)
}

// Push queues a chained phase ahead of every offered phase.
func (f *Frontier) Push(p *Phase) error {
	return f.enqueue(p, priorityChained)
}

func (f *Frontier) enqueue(p *Phase, priority int) error {
	f.mu.Lock()
	if f.maxDepth > 0 && f.heap.Len() >= f.maxDepth {
		f.mu.Unlock()
		return ErrBackpressure
	}
	f.seq++
	seq := f.seq
	if priority == priorityChained {
		seq = -seq
	}
	heap.Push(&f.heap, workItem{phase: p, priority: priority, seq: seq})
	f.mu.Unlock()

	f.signal()
	return nil
}

// Dequeue returns the highest-priority pending phase, blocking until one is
// available. It returns (nil, nil) once the frontier has drained, and the
// context error if ctx ends first. Every phase returned must be followed by
// a call to Done.
func (f *Frontier) Dequeue(ctx context.Context) (*Phase, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f.mu.Lock()
		if f.heap.Len() > 0 {
			item := heap.Pop(&f.heap).(workItem)
			f.inflight++
			more := f.heap.Len() > 0
			f.mu.Unlock()
			if more {
				f.signal()
			}
			return item.phase, nil
		}
		drained := f.inflight == 0
		f.mu.Unlock()

		if drained {
			f.markIdle()
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.idle:
			return nil, nil
		case <-f.ready:
		}
	}
}

// TryDequeue returns the highest-priority pending phase without blocking, or
// nil when none is queued. Like Dequeue, it counts the returned phase as in
// flight: the caller must call Done once the phase has run, or the frontier
// never reports idle.
func (f *Frontier) TryDequeue() *Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heap.Len() == 0 {
		return nil
	}
	item := heap.Pop(&f.heap).(workItem)
	f.inflight++
	return item.phase
}

// Done records that a phase handed out by Dequeue or TryDequeue has finished
// running.
func (f *Frontier) Done() {
	f.mu.Lock()
	f.inflight--
	drained := f.inflight == 0 && f.heap.Len() == 0
	f.mu.Unlock()

	if drained {
		f.markIdle()
	}
}

// Len returns the number of queued phases.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// Inflight returns the number of dequeued phases not yet marked Done.
func (f *Frontier) Inflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight
}

// Drain removes and returns every queued phase.
func (f *Frontier) Drain() []*Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Phase, 0, f.heap.Len())
	for f.heap.Len() > 0 {
		out = append(out, heap.Pop(&f.heap).(workItem).phase)
	}
	return out
}

func (f *Frontier) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *Frontier) markIdle() {
	f.idleOnce.Do(func() { close(f.idle) })
}
