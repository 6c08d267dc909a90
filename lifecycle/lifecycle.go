package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/lifecycle-go/lifecycle/emit"
	"github.com/dshills/lifecycle-go/lifecycle/store"
)

// StageEvent is delivered to listeners each time a phase completes.
type StageEvent struct {
	// Stage is the stage of the completed phase.
	Stage Stage

	// Event names the stage's completion event, e.g. "initialized".
	Event string

	// View is the root element of the pass.
	View Element

	// Model is the model of the pass.
	Model any

	// Element is the element whose phase completed.
	Element Element

	// Phase is the completed phase. It is only valid during the call.
	Phase *Phase
}

// Listener observes phase completions. Listeners run synchronously on the
// completing worker, before the completion is propagated, and must be safe
// for concurrent use.
type Listener func(StageEvent)

// Lifecycle is the context of one scheduling pass over a component tree.
//
// It carries the state every phase consults: whether the pass is active,
// strict and trace modes, the view root and model, the processor and the
// phase pool. Nothing is held in package-level or goroutine-bound state, so
// independent lifecycles can run side by side.
//
// Example:
//
//	pool := lifecycle.NewPool(0)
//	lc, err := lifecycle.New(pool, view, model, lifecycle.WithWorkers(4))
//	if err != nil {
//	    return err
//	}
//	defer lc.Release()
//
//	if err := lc.Run(ctx); err != nil {
//	    return err
//	}
type Lifecycle struct {
	passID string
	opts   Options
	active atomic.Bool

	view  Element
	model any

	pool      *Pool
	processor *Processor

	mu        sync.RWMutex
	tasks     [numStages][]Task
	listeners []Listener

	emitter emit.Emitter
	metrics *PrometheusMetrics
	journal store.Store
	logger  *slog.Logger

	eventSeq      atomic.Int64
	completionSeq atomic.Int64
	phaseErrors   atomic.Int64

	errMu    sync.Mutex
	firstErr error
}

// New creates a lifecycle for one pass over view.
//
// pool may be shared by any number of lifecycles; a nil pool creates a
// private one. The lifecycle starts inactive; Perform and Run activate it for
// their duration.
func New(pool *Pool, view Element, model any, opts ...Option) (*Lifecycle, error) {
	cfg := &lifecycleConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if pool == nil {
		pool = NewPool(0)
	}

	lc := &Lifecycle{
		passID:  cfg.opts.PassID,
		opts:    cfg.opts,
		view:    view,
		model:   model,
		pool:    pool,
		emitter: cfg.opts.Emitter,
		metrics: cfg.opts.Metrics,
		journal: cfg.opts.Journal,
		logger:  cfg.opts.Logger,
	}
	if lc.passID == "" {
		lc.passID = uuid.NewString()
	}
	if lc.emitter == nil {
		lc.emitter = emit.NewNullEmitter()
	}
	if lc.logger == nil {
		lc.logger = slog.New(slog.DiscardHandler)
	}
	lc.logger = lc.logger.With("passID", lc.passID)
	lc.processor = newProcessor(lc)
	return lc, nil
}

// PassID returns the identifier of the pass.
func (lc *Lifecycle) PassID() string { return lc.passID }

// Options returns the options the lifecycle was configured with.
func (lc *Lifecycle) Options() Options { return lc.opts }

// IsActive reports whether phases may currently run.
func (lc *Lifecycle) IsActive() bool { return lc.active.Load() }

// IsStrict reports whether strict path verification is enabled.
func (lc *Lifecycle) IsStrict() bool { return lc.opts.Strict }

// IsTrace reports whether the per-step trace is enabled.
func (lc *Lifecycle) IsTrace() bool { return lc.opts.Trace }

// View returns the root element of the pass.
func (lc *Lifecycle) View() Element { return lc.view }

// Model returns the model of the pass.
func (lc *Lifecycle) Model() any { return lc.model }

// Processor returns the processor driving the pass.
func (lc *Lifecycle) Processor() *Processor { return lc.processor }

// Pool returns the phase pool.
func (lc *Lifecycle) Pool() *Pool { return lc.pool }

// Logger returns the pass logger.
func (lc *Lifecycle) Logger() *slog.Logger { return lc.logger }

// Activate allows phases to run.
func (lc *Lifecycle) Activate() { lc.active.Store(true) }

// Deactivate makes every subsequent Phase.Run fail with ErrIllegalState.
func (lc *Lifecycle) Deactivate() { lc.active.Store(false) }

// AddTask registers a task run by every phase of stage, before the tasks the
// element itself provides.
func (lc *Lifecycle) AddTask(stage Stage, task Task) {
	if !stage.Valid() || task == nil {
		return
	}
	lc.mu.Lock()
	lc.tasks[stage] = append(lc.tasks[stage], task)
	lc.mu.Unlock()
}

// AddListener registers a listener for phase completions.
func (lc *Lifecycle) AddListener(l Listener) {
	if l == nil {
		return
	}
	lc.mu.Lock()
	lc.listeners = append(lc.listeners, l)
	lc.mu.Unlock()
}

// ReportIllegalState logs an ordering or state violation observed on p and
// returns it as a *PhaseError of KindIllegalState. p may be nil.
func (lc *Lifecycle) ReportIllegalState(p *Phase, format string, args ...any) error {
	pe := &PhaseError{
		Kind:    KindIllegalState,
		Message: fmt.Sprintf(format, args...),
	}
	if p != nil {
		pe.Stage = p.stage
		pe.Path = p.path
		if p.element != nil {
			pe.ElementID = p.element.ID()
		}
		lc.logger.Warn("lifecycle illegal state",
			"stage", p.stage.String(),
			"path", p.path,
			"element", pe.ElementID,
			"error", pe.Message,
		)
	} else {
		lc.logger.Warn("lifecycle illegal state", "error", pe.Message)
	}
	return pe
}

// NewPhase acquires a phase for stage from the pool and prepares it. The
// phase goes back to the pool when preparation fails.
func (lc *Lifecycle) NewPhase(stage Stage, element Element, path string, parent Element, next *Phase) (*Phase, error) {
	if !stage.Valid() {
		return nil, lc.ReportIllegalState(nil, "unknown stage %s", stage)
	}
	p := lc.pool.Acquire(stage)
	if err := p.Prepare(lc, element, path, parent, next); err != nil {
		lc.pool.Release(p)
		return nil, err
	}
	return p, nil
}

// Chain prepares one phase per stage over element, linking each to the next
// through its next phase, and returns the first. Completing one stage over
// the element's whole subtree then queues the following stage with priority.
func (lc *Lifecycle) Chain(element Element, path string, parent Element, stages ...Stage) (*Phase, error) {
	if len(stages) == 0 {
		return nil, lc.ReportIllegalState(nil, "chain requires at least one stage")
	}

	var next *Phase
	created := make([]*Phase, 0, len(stages))
	for i := len(stages) - 1; i >= 0; i-- {
		p, err := lc.NewPhase(stages[i], element, path, parent, next)
		if err != nil {
			lc.releaseAll(created)
			return nil, err
		}
		created = append(created, p)
		next = p
	}
	return next, nil
}

// Perform activates the lifecycle and has the processor run root and
// everything it spawns. The pass summary is written to the journal when one
// is configured.
func (lc *Lifecycle) Perform(ctx context.Context, root *Phase) error {
	wasActive := lc.active.Swap(true)
	defer func() {
		if !wasActive {
			lc.active.Store(false)
		}
	}()

	start := passStart{
		at:          time.Now(),
		completions: lc.completionSeq.Load(),
		errors:      lc.phaseErrors.Load(),
	}
	lc.errMu.Lock()
	lc.firstErr = nil
	lc.errMu.Unlock()

	lc.logger.Info("lifecycle pass started", "workers", lc.opts.Workers, "strict", lc.opts.Strict)
	lc.emit(emit.MsgPassStart, nil, nil)

	err := lc.processor.Perform(ctx, root)
	lc.finishPass(ctx, start, err)
	return err
}

// passStart marks where one call to Perform began. Completion sequence
// numbers keep growing across calls so journal entries of one pass ID stay
// unique; the summary counts only what happened since the mark.
type passStart struct {
	at          time.Time
	completions int64
	errors      int64
}

// Run drives the view through every stage it has not yet reached, in order.
// Each stage finishes over the whole tree before the next one starts.
func (lc *Lifecycle) Run(ctx context.Context) error {
	if lc.view == nil {
		return lc.ReportIllegalState(nil, "lifecycle has no view")
	}

	var stages []Stage
	for _, stage := range Stages() {
		if lc.view.Status().Before(stage.End()) {
			stages = append(stages, stage)
		}
	}
	if len(stages) == 0 {
		return nil
	}

	root, err := lc.Chain(lc.view, "", nil, stages...)
	if err != nil {
		return err
	}
	return lc.Perform(ctx, root)
}

// Release hands the root phases retained by the processor back to the pool.
// It must not be called while Perform is running.
func (lc *Lifecycle) Release() {
	lc.releaseAll(lc.processor.takeRetained())
}

func (lc *Lifecycle) hooks(stage Stage) StageHooks {
	return lc.opts.hooks[stage]
}

func (lc *Lifecycle) tasksFor(stage Stage) []Task {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	out := make([]Task, len(lc.tasks[stage]))
	copy(out, lc.tasks[stage])
	return out
}

func (lc *Lifecycle) resolve(root Element, path string) Element {
	return ResolvePath(root, path)
}

func (lc *Lifecycle) phaseStarted(p *Phase) {
	lc.emit(emit.MsgPhaseStart, p, nil)
}

func (lc *Lifecycle) phaseProcessed(p *Phase, successors int) {
	p.spawned = successors
	elapsed := time.Since(p.started)
	lc.metrics.RecordPhaseLatency(p.stage, elapsed, "success")
	lc.emit(emit.MsgPhaseProcessed, p, map[string]interface{}{
		"successors":  successors,
		"duration_ms": elapsed.Milliseconds(),
	})
}

func (lc *Lifecycle) phaseCompleted(ctx context.Context, p *Phase) {
	lc.mu.RLock()
	listeners := lc.listeners
	lc.mu.RUnlock()

	event := StageEvent{
		Stage:   p.stage,
		Event:   p.stage.Event(),
		View:    lc.view,
		Model:   lc.model,
		Element: p.element,
		Phase:   p,
	}
	for _, l := range listeners {
		l(event)
	}

	var elapsed time.Duration
	if !p.started.IsZero() {
		elapsed = time.Since(p.started)
	}
	seq := lc.completionSeq.Add(1)
	lc.metrics.IncrementPhases(p.stage, "completed")
	lc.emit(emit.MsgPhaseComplete, p, map[string]interface{}{
		"successors":  p.spawned,
		"duration_ms": elapsed.Milliseconds(),
	})

	if lc.journal == nil {
		return
	}
	err := lc.journal.SaveCompletion(ctx, store.Completion{
		PassID:      lc.passID,
		Seq:         seq,
		Stage:       p.stage.String(),
		ElementID:   p.element.ID(),
		Path:        p.path,
		Successors:  p.spawned,
		Duration:    elapsed,
		CompletedAt: time.Now(),
	})
	if err != nil {
		lc.logger.Warn("failed to journal phase completion", "stage", p.stage.String(), "path", p.path, "error", err)
	}
}

func (lc *Lifecycle) phaseFailed(ident phaseIdentity, err error) {
	kind := KindUnexpected
	var pe *PhaseError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}

	lc.phaseErrors.Add(1)
	lc.errMu.Lock()
	if lc.firstErr == nil {
		lc.firstErr = err
	}
	lc.errMu.Unlock()

	// Illegal states were logged when reported.
	if kind != KindIllegalState {
		lc.logger.Warn("lifecycle phase failed",
			"phase", ident.ptr,
			"stage", ident.stage.String(),
			"path", ident.path,
			"element", ident.elementID,
			"kind", kind.String(),
			"error", err,
		)
	}
	if lc.opts.Trace {
		lc.logger.Debug("lifecycle phase", "phase", ident.ptr, "stage", ident.stage.String(), "step", "error", "path", ident.path)
	}

	lc.metrics.IncrementPhases(ident.stage, kind.String())
	lc.emitEvent(emit.Event{
		Stage:     ident.stage.String(),
		ElementID: ident.elementID,
		Path:      ident.path,
		Msg:       emit.MsgPhaseError,
		Meta: map[string]interface{}{
			"error": err.Error(),
			"kind":  kind.String(),
		},
	})
}

func (lc *Lifecycle) finishPass(ctx context.Context, start passStart, err error) {
	elapsed := time.Since(start.at)
	summary := store.Summary{
		PassID:      lc.passID,
		Status:      store.StatusCompleted,
		Phases:      int(lc.completionSeq.Load() - start.completions),
		Errors:      int(lc.phaseErrors.Load() - start.errors),
		Duration:    elapsed,
		CompletedAt: time.Now(),
	}

	meta := map[string]interface{}{
		"duration_ms": elapsed.Milliseconds(),
		"phases":      summary.Phases,
	}
	if err != nil {
		summary.Status = store.StatusFailed
		summary.Error = err.Error()
		meta["error"] = err.Error()
		lc.logger.Warn("lifecycle pass failed", "phases", summary.Phases, "errors", summary.Errors, "error", err)
		lc.emit(emit.MsgPassError, nil, meta)
	} else {
		lc.logger.Info("lifecycle pass completed", "phases", summary.Phases, "duration", elapsed)
		lc.emit(emit.MsgPassComplete, nil, meta)
	}

	if lc.journal == nil {
		return
	}
	// The pass context may already have expired; the summary is still written.
	if saveErr := lc.journal.SaveSummary(context.WithoutCancel(ctx), summary); saveErr != nil {
		lc.logger.Warn("failed to journal pass summary", "error", saveErr)
	}
}

// FirstError returns the first phase error observed since the latest call to
// Perform began, or since the lifecycle was created when phases were run
// directly.
func (lc *Lifecycle) FirstError() error {
	lc.errMu.Lock()
	defer lc.errMu.Unlock()
	return lc.firstErr
}

// emit sends a pass-level event when p is nil, a phase-level one otherwise.
func (lc *Lifecycle) emit(msg string, p *Phase, meta map[string]interface{}) {
	event := emit.Event{Msg: msg, Meta: meta}
	if p != nil {
		event.Stage = p.stage.String()
		event.ElementID = p.describeElement()
		event.Path = p.path
	}
	lc.emitEvent(event)
}

func (lc *Lifecycle) emitEvent(event emit.Event) {
	event.PassID = lc.passID
	event.Seq = lc.eventSeq.Add(1)
	lc.emitter.Emit(event)
}

func (lc *Lifecycle) releaseAll(phases []*Phase) {
	for _, p := range phases {
		lc.pool.Release(p)
	}
}
