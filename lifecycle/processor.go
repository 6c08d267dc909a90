package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Processor holds the pending phases of a Lifecycle and drives them to
// completion.
//
// Phases reach the processor in two ways: OfferPendingPhase for ordinary
// successors fanned out by a running phase, and PushPendingPhase for chained
// next phases, which dispatch ahead of everything offered. Perform drains the
// queue with one or more workers until nothing is queued or running.
//
// Root phases, those without a predecessor, are not returned to the pool when
// they complete. The processor retains them so callers can inspect the
// finished pass; Lifecycle.Release hands them back.
type Processor struct {
	lc *Lifecycle

	mu       sync.Mutex
	frontier *Frontier
	chain    []*Phase // top-level phase chain of the current Perform
	retained []*Phase // roots and chain phases, held until release
	done     chan struct{}
	doneSet  bool
	errs     []error

	active atomic.Pointer[Phase]
}

func newProcessor(lc *Lifecycle) *Processor {
	return &Processor{
		lc:       lc,
		frontier: NewFrontier(lc.opts.MaxQueueDepth),
		done:     make(chan struct{}),
	}
}

func (pr *Processor) queue() *Frontier {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.frontier
}

// OfferPendingPhase queues an ordinary successor phase.
func (pr *Processor) OfferPendingPhase(p *Phase) error {
	return pr.enqueue(p, false)
}

// PushPendingPhase queues a chained phase ahead of every offered phase.
func (pr *Processor) PushPendingPhase(p *Phase) error {
	return pr.enqueue(p, true)
}

func (pr *Processor) enqueue(p *Phase, chained bool) error {
	if p == nil || !p.IsPrepared() {
		return &PhaseError{Kind: KindIllegalState, Message: "only prepared phases may be queued"}
	}

	f := pr.queue()
	var err error
	if chained {
		err = f.Push(p)
	} else {
		err = f.Offer(p)
	}
	if errors.Is(err, ErrBackpressure) {
		pr.lc.metrics.IncrementBackpressure("queue_full")
		pr.lc.logger.Warn("lifecycle pending queue is full",
			"passID", pr.lc.passID,
			"stage", p.stage.String(),
			"path", p.path,
			"maxQueueDepth", pr.lc.opts.MaxQueueDepth,
		)
		return err
	}
	if err != nil {
		return err
	}
	pr.lc.metrics.UpdateQueueDepth(f.Len())
	return nil
}

// SetActivePhase records the phase currently running, or clears it when p is
// nil. With several workers it holds the most recently started phase.
func (pr *Processor) SetActivePhase(p *Phase) {
	pr.active.Store(p)
}

// ActivePhase returns the phase currently running, if any. It is meant for
// diagnostics only.
func (pr *Processor) ActivePhase() *Phase {
	return pr.active.Load()
}

// Len returns the number of pending phases.
func (pr *Processor) Len() int {
	return pr.queue().Len()
}

// Done returns a channel closed once the top-level phase chain of the current
// pass has completed. Outside Perform, the first completing root closes it.
func (pr *Processor) Done() <-chan struct{} {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.done
}

// Await blocks until Done is closed or ctx ends.
func (pr *Processor) Await(ctx context.Context) error {
	select {
	case <-pr.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rootCompleted retains a completed root phase and wakes waiters once the
// top-level chain has finished.
func (pr *Processor) rootCompleted(p *Phase) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.retained = append(pr.retained, p)
	if !pr.doneSet && chainComplete(pr.chain) {
		pr.doneSet = true
		close(pr.done)
	}
}

func chainComplete(chain []*Phase) bool {
	for _, p := range chain {
		if !p.IsComplete() {
			return false
		}
	}
	return true
}

// Perform runs root and everything it spawns.
//
// root must be prepared and have no predecessor. Phases chained from root
// through next phases belong to the same pass. Perform returns once no phase
// is queued or running. It succeeds only when root and every phase chained
// from it completed; a queue that drained earlier yields ErrNoProgress.
//
// With ContinueOnError unset, the first phase error stops every worker and is
// returned. Otherwise all phase errors are returned joined once the queue has
// drained. Phases still queued when Perform stops are returned to the pool.
func (pr *Processor) Perform(ctx context.Context, root *Phase) error {
	if root == nil || !root.IsPrepared() {
		return &PhaseError{Kind: KindIllegalState, Message: "perform requires a prepared root phase"}
	}
	if root.Predecessor() != nil {
		return pr.lc.ReportIllegalState(root, "root phase of a pass must not have a predecessor")
	}

	opts := pr.lc.opts
	if opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.PassTimeout)
		defer cancel()
	}

	f := pr.begin(root)
	if err := pr.PushPendingPhase(root); err != nil {
		pr.end(f)
		return err
	}

	var runErr error
	if opts.Workers <= 1 {
		runErr = pr.drive(ctx, f, pr.lc.logger)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < opts.Workers; i++ {
			logger := pr.lc.logger.With("workerID", i)
			g.Go(func() error {
				return pr.drive(gctx, f, logger)
			})
		}
		runErr = g.Wait()
	}

	errs, complete := pr.end(f)
	switch {
	case runErr != nil && len(errs) == 0:
		return runErr
	case runErr != nil:
		return errors.Join(append(errs, runErr)...)
	case len(errs) > 0:
		return errors.Join(errs...)
	case !complete:
		return ErrNoProgress
	}
	return nil
}

// begin records the chain starting at root and resets the completion signal.
func (pr *Processor) begin(root *Phase) *Frontier {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.chain = nil
	seen := make(map[*Phase]bool)
	for p := root; p != nil && !seen[p]; p = p.NextPhase() {
		seen[p] = true
		pr.chain = append(pr.chain, p)
	}
	pr.retained = append(pr.retained, pr.chain...)
	pr.errs = nil
	pr.done = make(chan struct{})
	pr.doneSet = false
	return pr.frontier
}

// end releases phases left in f, installs a fresh frontier for the next
// pass and reports the collected errors and whether the chain completed.
//
// A chain phase still queued when the pass stops is released here and
// dropped from the retained set, so a later Release cannot recycle it again
// after the pool has handed it to another lifecycle.
func (pr *Processor) end(f *Frontier) ([]error, bool) {
	leftover := f.Drain()

	pr.mu.Lock()
	if pr.frontier == f {
		pr.frontier = NewFrontier(pr.lc.opts.MaxQueueDepth)
	}
	errs := pr.errs
	pr.errs = nil
	complete := chainComplete(pr.chain)

	if len(leftover) > 0 {
		drained := make(map[*Phase]bool, len(leftover))
		for _, p := range leftover {
			drained[p] = true
		}
		kept := pr.retained[:0]
		for _, p := range pr.retained {
			if !drained[p] {
				kept = append(kept, p)
			}
		}
		for i := len(kept); i < len(pr.retained); i++ {
			pr.retained[i] = nil
		}
		pr.retained = kept
	}
	pr.chain = nil
	pr.mu.Unlock()

	for _, p := range leftover {
		pr.lc.pool.Release(p)
	}

	pr.lc.metrics.UpdateQueueDepth(0)
	pr.lc.metrics.UpdateInflightPhases(0)
	return errs, complete
}

// drive is one worker's loop: dequeue, run, repeat until the frontier drains.
func (pr *Processor) drive(ctx context.Context, f *Frontier, logger *slog.Logger) error {
	m := pr.lc.metrics
	for {
		p, err := f.Dequeue(ctx)
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		m.UpdateQueueDepth(f.Len())
		m.UpdateInflightPhases(f.Inflight())

		// p may be recycled by another worker once Run returns.
		err = p.Run(ctx)
		f.Done()
		m.UpdateInflightPhases(f.Inflight())

		if err == nil {
			continue
		}
		if !pr.lc.opts.ContinueOnError {
			return err
		}
		logger.Debug("lifecycle phase failed, continuing with remaining phases", "error", err)
		pr.recordError(err)
	}
}

func (pr *Processor) recordError(err error) {
	pr.mu.Lock()
	pr.errs = append(pr.errs, err)
	pr.mu.Unlock()
}

// takeRetained returns every root and chain phase held by the processor and
// forgets them.
func (pr *Processor) takeRetained() []*Phase {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	seen := make(map[*Phase]bool, len(pr.retained))
	out := make([]*Phase, 0, len(pr.retained))
	for _, p := range pr.retained {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	pr.chain = nil
	pr.retained = nil
	return out
}
