// Package lifecycle provides the multi-stage scheduling engine that drives a
// component tree through its processing stages.
package lifecycle

import "fmt"

// Status is the stage-status of an element. Statuses are ordered; an element
// only ever moves forward through them within one pass.
type Status int

const (
	// StatusCreated is the status of a freshly constructed element.
	StatusCreated Status = iota

	// StatusInitialized is reached once the Initialize stage has been applied.
	StatusInitialized

	// StatusModelApplied is reached once the ApplyModel stage has been applied.
	StatusModelApplied

	// StatusFinal is reached once the Finalize stage has been applied.
	StatusFinal

	// StatusRendered is reached once the Render stage has been applied.
	StatusRendered
)

var statusNames = [...]string{
	StatusCreated:      "CREATED",
	StatusInitialized:  "INITIALIZED",
	StatusModelApplied: "MODEL_APPLIED",
	StatusFinal:        "FINAL",
	StatusRendered:     "RENDERED",
}

// String returns the upper-case status name.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Before reports whether s precedes other in the stage sequence.
func (s Status) Before(other Status) bool {
	return s < other
}

// Stage identifies one processing stage of the lifecycle. The set of stages is
// finite; per-stage behavior is selected from a table indexed by Stage rather
// than through per-stage phase types.
type Stage int

const (
	// StageInitialize moves an element from CREATED to INITIALIZED.
	StageInitialize Stage = iota

	// StageApplyModel moves an element from INITIALIZED to MODEL_APPLIED.
	StageApplyModel

	// StageFinalize moves an element from MODEL_APPLIED to FINAL.
	StageFinalize

	// StageRender moves an element from FINAL to RENDERED.
	StageRender

	numStages
)

type stageInfo struct {
	name  string
	event string
	start Status
	end   Status
}

var stageTable = [numStages]stageInfo{
	StageInitialize: {name: "initialize", event: "initialized", start: StatusCreated, end: StatusInitialized},
	StageApplyModel: {name: "apply_model", event: "model_applied", start: StatusInitialized, end: StatusModelApplied},
	StageFinalize:   {name: "finalize", event: "finalized", start: StatusModelApplied, end: StatusFinal},
	StageRender:     {name: "render", event: "rendered", start: StatusFinal, end: StatusRendered},
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageInitialize, StageApplyModel, StageFinalize, StageRender}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	return s >= 0 && s < numStages
}

// String returns the snake_case stage name used in logs, events and metric labels.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageTable[s].name
}

// Start is the status an element must hold when a phase of this stage runs.
func (s Stage) Start() Status {
	return stageTable[s].start
}

// End is the status an element holds after a phase of this stage has run.
func (s Stage) End() Status {
	return stageTable[s].end
}

// Event is the lifecycle event name delivered to listeners when a phase of
// this stage completes.
func (s Stage) Event() string {
	return stageTable[s].event
}

// Next returns the stage that follows s. The second result is false for the
// last stage.
func (s Stage) Next() (Stage, bool) {
	if !s.Valid() || s+1 >= numStages {
		return s, false
	}
	return s + 1, true
}
