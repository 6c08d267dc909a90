package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PhaseState is the position of a phase in its own state machine:
// unprepared → prepared → processed → completed → recycled.
type PhaseState int

const (
	// StateUnprepared is a freshly allocated phase that has not been prepared.
	StateUnprepared PhaseState = iota

	// StatePrepared is a phase whose fields are populated and which may run.
	StatePrepared

	// StateProcessed is a phase whose own tasks have run.
	StateProcessed

	// StateCompleted is a phase whose entire successor subtree has finished.
	StateCompleted

	// StateRecycled is a phase that has been cleared and returned to its pool.
	StateRecycled
)

// String returns a readable state name.
func (s PhaseState) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StatePrepared:
		return "prepared"
	case StateProcessed:
		return "processed"
	case StateCompleted:
		return "completed"
	case StateRecycled:
		return "recycled"
	default:
		return "unknown"
	}
}

// pendingUnset is the pending-successor sentinel of a phase that has not yet
// computed its successors.
const pendingUnset = -1

// Phase applies one stage to one element.
//
// A phase runs its tasks top-down (Run), then fans out one successor phase per
// child element. It is processed once its own tasks have run and complete once
// every successor, transitively, has completed. Completion is acknowledged
// bottom-up through the predecessor chain: each finished successor decrements
// its predecessor's pending count and the successor that brings it to zero
// completes the predecessor.
//
// Phases are pooled. A phase obtained from a Pool must be prepared before it
// runs, and is cleared and returned to the pool by NotifyCompleted once its
// predecessor has been informed. Root phases (no predecessor) are retained by
// the processor until the Lifecycle is released.
//
// Run and NotifyCompleted may be called from different goroutines. Accessors
// are not synchronized against Prepare or recycling of the same instance.
type Phase struct {
	// mu serializes decrements of pending by concurrently completing successors.
	mu      sync.Mutex
	pending int

	stage   Stage
	lc      *Lifecycle
	element Element
	model   any
	parent  Element
	path    string

	predecessor atomic.Pointer[Phase]
	nextPhase   *Phase
	tasks       []Task
	currentTask atomic.Pointer[Task]

	prepared  atomic.Bool
	processed atomic.Bool
	completed atomic.Bool

	started    time.Time
	spawned    int
	generation uint64

	// pooled is guarded by the owning Pool's mutex.
	pooled bool
}

func newPhase(stage Stage) *Phase {
	return &Phase{stage: stage, pending: pendingUnset}
}

// Prepare populates the phase for processing element at path.
//
// parent is the element owning element within the tree (nil for the view
// root). next, when non-nil, is queued with priority once this phase
// completes; it models a same-element multi-stage pipeline.
//
// Prepare fails with ErrIllegalState, before writing any field, when the
// phase is already prepared or element has already reached this stage's end
// status.
func (p *Phase) Prepare(lc *Lifecycle, element Element, path string, parent Element, next *Phase) error {
	if lc == nil {
		return &PhaseError{Kind: KindIllegalState, Stage: p.stage, Path: path, Message: "phase prepared without a lifecycle"}
	}
	if element == nil {
		return lc.ReportIllegalState(p, "phase prepared without an element")
	}
	if p.prepared.Load() {
		return lc.ReportIllegalState(p, "phase is already prepared for %s", p.describeElement())
	}
	if !element.Status().Before(p.stage.End()) {
		return lc.ReportIllegalState(p, "component is already in the expected end status %s before this phase: %s",
			p.stage.End(), element.ID())
	}

	p.lc = lc
	p.element = element
	p.model = lc.Model()
	p.path = path
	p.parent = parent
	p.nextPhase = next
	p.prepared.Store(true)

	p.trace("prepare")
	return nil
}

// Run executes the phase.
//
// Run validates ordering and element state, updates the element's path, runs
// the stage's tasks sequentially on the calling goroutine, advances the
// element to the stage's end status and then fans out successors. With no
// successors the phase completes before Run returns. With successors, each is
// linked to this phase and offered to the processor; the phase completes once
// the last of them does.
//
// Every validation runs before any mutation. A task error aborts the remaining
// tasks and is returned wrapped in a *PhaseError of KindTaskFailure whose
// Unwrap yields the task's own error. Panics are recovered and reported as
// KindUnexpected.
func (p *Phase) Run(ctx context.Context) (err error) {
	if !p.prepared.Load() || p.lc == nil {
		return &PhaseError{Kind: KindIllegalState, Stage: p.stage, Message: "phase has not been prepared"}
	}

	lc := p.lc
	ident := p.identity()

	defer func() {
		if r := recover(); r != nil {
			err = &PhaseError{
				Kind:      KindUnexpected,
				Stage:     ident.stage,
				Path:      ident.path,
				ElementID: ident.elementID,
				Message:   "unexpected error in lifecycle phase",
				Cause:     fmt.Errorf("panic: %v", r),
			}
		}
		if err != nil {
			lc.phaseFailed(ident, err)
		}
	}()

	if err := p.validateBeforeProcessing(); err != nil {
		return err
	}
	if err := p.process(ctx); err != nil {
		return err
	}
	return p.spawnSuccessors(ctx)
}

// validateBeforeProcessing checks phase and lifecycle state before any
// mutation takes place.
func (p *Phase) validateBeforeProcessing() error {
	if p.processed.Load() {
		return p.lc.ReportIllegalState(p, "lifecycle phase has already been processed")
	}
	if pred := p.predecessor.Load(); pred != nil && !pred.IsProcessed() {
		return p.lc.ReportIllegalState(p, "predecessor phase has not completely processed")
	}
	if !p.lc.IsActive() {
		return p.lc.ReportIllegalState(p, "lifecycle is not active")
	}
	if status := p.element.Status(); status != p.stage.Start() {
		return p.lc.ReportIllegalState(p, "component is not in the expected status %s at the start of this phase, found %s %s",
			p.stage.Start(), p.element.ID(), status)
	}
	if p.lc.IsStrict() {
		if err := p.verifyPath(); err != nil {
			return err
		}
	}

	p.trace("ready " + p.stage.Start().String() + " -> " + p.stage.End().String())
	return nil
}

// verifyPath confirms that the phase's path still resolves to the element
// being processed, which catches stale or duplicated paths.
func (p *Phase) verifyPath() error {
	view := p.lc.View()
	if view != nil && p.element == view {
		if p.path != "" {
			return p.lc.ReportIllegalState(p, "view path is not empty: %s", p.path)
		}
		return nil
	}

	referred := p.lc.resolve(view, p.path)
	if referred != nil && referred != p.element {
		return p.lc.ReportIllegalState(p, "path %s refers to an element other than %s %s: %s %s",
			p.path, p.element.ID(), p.element.Path(), referred.ID(), referred.Path())
	}
	return nil
}

// process updates the element path, runs the task queue and advances the
// element status.
func (p *Phase) process(ctx context.Context) error {
	proc := p.lc.Processor()
	proc.SetActivePhase(p)
	defer proc.SetActivePhase(nil)

	p.started = time.Now()
	p.lc.phaseStarted(p)

	p.trace("path-update " + p.element.Path())
	p.element.SetPath(p.path)

	p.tasks = p.lc.hooks(p.stage).buildTasks(p)
	for len(p.tasks) > 0 {
		task := p.tasks[0]
		p.tasks = p.tasks[1:]

		p.currentTask.Store(&task)
		err := task.Run(ctx, p)
		p.currentTask.Store(nil)

		if err != nil {
			return &PhaseError{
				Kind:      KindTaskFailure,
				Stage:     p.stage,
				Path:      p.path,
				ElementID: p.element.ID(),
				Task:      taskName(task),
				Message:   "task " + taskName(task) + " failed",
				Cause:     err,
			}
		}
	}
	p.tasks = nil

	p.element.SetStatus(p.stage.End())
	p.processed.Store(true)
	return nil
}

// spawnSuccessors computes the successor set and either completes the phase
// or hands the successors to the processor. The phase must not be touched
// once the last successor has been offered: another worker may complete and
// recycle it from then on.
func (p *Phase) spawnSuccessors(ctx context.Context) error {
	successors, err := p.lc.hooks(p.stage).buildSuccessors(p)
	if err != nil {
		var pe *PhaseError
		if errors.As(err, &pe) {
			return err
		}
		return &PhaseError{
			Kind:      KindUnexpected,
			Stage:     p.stage,
			Path:      p.path,
			ElementID: p.element.ID(),
			Message:   "failed to build successor phases",
			Cause:     err,
		}
	}

	p.mu.Lock()
	if p.pending != pendingUnset {
		p.mu.Unlock()
		return p.lc.ReportIllegalState(p, "successors already computed")
	}
	p.pending = len(successors)
	p.mu.Unlock()

	p.trace(fmt.Sprintf("processed %d", len(successors)))
	p.lc.phaseProcessed(p, len(successors))

	if len(successors) == 0 {
		return p.NotifyCompleted(ctx)
	}

	lc := p.lc
	proc := lc.Processor()
	for i, successor := range successors {
		if !successor.predecessor.CompareAndSwap(nil, p) {
			lc.releaseAll(successors[i+1:])
			return lc.ReportIllegalState(successor, "successor phase already has a predecessor")
		}
		successor.trace("succ-pend")
		if err := proc.OfferPendingPhase(successor); err != nil {
			lc.releaseAll(successors[i:])
			return err
		}
	}
	return nil
}

// NotifyCompleted marks the phase complete and informs its predecessors.
//
// The walk is iterative: after completing a phase, its predecessor's pending
// count is decremented under the predecessor's own lock, the finished phase
// is returned to the pool, and the walk continues with the predecessor only
// when that decrement reached zero. Exactly one of any number of concurrently
// completing siblings therefore completes their predecessor.
//
// A phase that has no predecessor is a root: its completion is reported to the
// processor, which wakes callers awaiting the pass.
//
// Completing a phase that has not been processed, or completing it twice,
// fails with ErrIllegalState.
func (p *Phase) NotifyCompleted(ctx context.Context) error {
	current := p
	for {
		pred, err := current.complete(ctx)
		if err != nil || pred == nil {
			return err
		}

		pred.mu.Lock()
		if pred.pending <= 0 {
			pred.mu.Unlock()
			return pred.lc.ReportIllegalState(pred, "successor completed with no pending successors recorded")
		}
		pred.pending--
		remaining := pred.pending
		pred.mu.Unlock()

		current.release()
		if remaining > 0 {
			return nil
		}
		current = pred
	}
}

// complete performs the completion of a single phase and returns its
// predecessor, if any.
func (p *Phase) complete(ctx context.Context) (*Phase, error) {
	if !p.prepared.Load() || p.lc == nil {
		return nil, &PhaseError{Kind: KindIllegalState, Stage: p.stage, Message: "completion of a phase that is not prepared"}
	}
	if !p.processed.Load() {
		return nil, p.lc.ReportIllegalState(p, "lifecycle phase has not been processed")
	}
	if !p.completed.CompareAndSwap(false, true) {
		return nil, p.lc.ReportIllegalState(p, "lifecycle phase has already completed")
	}
	p.trace("complete")

	lc := p.lc
	lc.phaseCompleted(ctx, p)
	p.element.NotifyCompleted(p)

	if p.nextPhase != nil {
		if err := lc.Processor().PushPendingPhase(p.nextPhase); err != nil {
			return nil, err
		}
	}

	pred := p.predecessor.Load()
	if pred == nil {
		p.trace("notify")
		lc.Processor().rootCompleted(p)
	}
	return pred, nil
}

// release returns a completed successor to its lifecycle's pool.
func (p *Phase) release() {
	if p.lc != nil && p.lc.pool != nil {
		p.lc.pool.Release(p)
		return
	}
	p.recycle()
}

// recycle clears every field so the instance carries no reference to the
// pass it served.
func (p *Phase) recycle() {
	p.trace("recycle")

	p.mu.Lock()
	p.pending = pendingUnset
	p.mu.Unlock()

	p.lc = nil
	p.element = nil
	p.model = nil
	p.parent = nil
	p.path = ""
	p.predecessor.Store(nil)
	p.nextPhase = nil
	p.tasks = nil
	p.currentTask.Store(nil)
	p.prepared.Store(false)
	p.processed.Store(false)
	p.completed.Store(false)
	p.started = time.Time{}
	p.spawned = 0
	p.generation++
}

// Stage returns the stage this phase applies.
func (p *Phase) Stage() Stage { return p.stage }

// StartStatus returns the status the element must hold when the phase runs.
func (p *Phase) StartStatus() Status { return p.stage.Start() }

// EndStatus returns the status the element holds once the phase has run.
func (p *Phase) EndStatus() Status { return p.stage.End() }

// Lifecycle returns the lifecycle context the phase was prepared with.
func (p *Phase) Lifecycle() *Lifecycle { return p.lc }

// Element returns the element being processed.
func (p *Phase) Element() Element { return p.element }

// Model returns the model associated with the pass.
func (p *Phase) Model() any { return p.model }

// Parent returns the parent of the element being processed.
func (p *Phase) Parent() Element { return p.parent }

// Path returns the element path this phase applies to.
func (p *Phase) Path() string { return p.path }

// Predecessor returns the phase that spawned this one, if any.
func (p *Phase) Predecessor() *Phase { return p.predecessor.Load() }

// NextPhase returns the phase chained to run once this one completes.
func (p *Phase) NextPhase() *Phase { return p.nextPhase }

// IsPrepared reports whether the phase has been prepared and not recycled.
func (p *Phase) IsPrepared() bool { return p.prepared.Load() }

// IsProcessed reports whether the phase's own tasks have run.
func (p *Phase) IsProcessed() bool { return p.processed.Load() }

// IsComplete reports whether the phase and its whole successor subtree have
// finished.
func (p *Phase) IsComplete() bool { return p.completed.Load() }

// CurrentTask returns the task currently executing, or nil between tasks.
func (p *Phase) CurrentTask() Task {
	if t := p.currentTask.Load(); t != nil {
		return *t
	}
	return nil
}

// PendingSuccessors returns the number of successors still to complete, or -1
// before successors have been computed.
func (p *Phase) PendingSuccessors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// State returns the phase's position in its state machine.
func (p *Phase) State() PhaseState {
	switch {
	case p.completed.Load():
		return StateCompleted
	case p.processed.Load():
		return StateProcessed
	case p.prepared.Load():
		return StatePrepared
	case p.generation > 0:
		return StateRecycled
	default:
		return StateUnprepared
	}
}

// String renders the phase followed by its predecessor chain.
func (p *Phase) String() string {
	var b strings.Builder
	b.WriteString("Processed? ")
	fmt.Fprintf(&b, "%t", p.processed.Load())

	for tp := p; tp != nil; tp = tp.predecessor.Load() {
		if tp == p {
			b.WriteString("\n")
		} else {
			b.WriteString("\n    ")
		}
		if tp.element == nil {
			fmt.Fprintf(&b, "%s phase (recycled)", tp.stage)
			continue
		}
		fmt.Fprintf(&b, "%s phase %p %s %s %d", tp.stage, tp, tp.path, tp.element.ID(), tp.PendingSuccessors())
		if tp == p {
			b.WriteString("\nPredecessor Phases:")
		}
	}
	return b.String()
}

// phaseIdentity captures what is needed to report on a phase after it may
// have been recycled.
type phaseIdentity struct {
	stage     Stage
	path      string
	elementID string
	ptr       string
}

func (p *Phase) identity() phaseIdentity {
	return phaseIdentity{
		stage:     p.stage,
		path:      p.path,
		elementID: p.describeElement(),
		ptr:       fmt.Sprintf("%p", p),
	}
}

func (p *Phase) describeElement() string {
	if p.element == nil {
		return "(recycled)"
	}
	return p.element.ID()
}

// trace logs a processing step at debug level when trace mode is on.
func (p *Phase) trace(step string) {
	lc := p.lc
	if lc == nil || !lc.IsTrace() {
		return
	}
	lc.logger.Debug("lifecycle phase",
		"phase", fmt.Sprintf("%p", p),
		"stage", p.stage.String(),
		"step", step,
		"path", p.path,
		"element", p.describeElement(),
	)
}
