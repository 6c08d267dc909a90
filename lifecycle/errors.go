package lifecycle

import (
	"errors"
	"strings"
)

// ErrIllegalState indicates a phase was used out of order: reused, run before
// its predecessor was processed, run while the lifecycle is inactive, run over
// an element in the wrong status, prepared or completed twice, or a strict
// mode path check failed.
var ErrIllegalState = errors.New("illegal lifecycle state")

// ErrTaskFailed indicates a task returned an error while its phase was running.
var ErrTaskFailed = errors.New("lifecycle task failed")

// ErrUnexpected indicates a failure that was neither a state violation nor a
// task error, typically a recovered panic.
var ErrUnexpected = errors.New("unexpected lifecycle failure")

// ErrNoProgress is returned by the processor when its pending queue drained
// without the top-level phase completing.
var ErrNoProgress = errors.New("no progress: pending queue drained before completion")

// ErrBackpressure is returned when offering a phase would exceed the
// configured maximum queue depth.
var ErrBackpressure = errors.New("pending phase queue exceeded maximum depth")

// ErrorKind classifies a PhaseError.
type ErrorKind int

const (
	// KindIllegalState marks ordering and state violations.
	KindIllegalState ErrorKind = iota

	// KindTaskFailure marks errors returned by tasks.
	KindTaskFailure

	// KindUnexpected marks every other failure raised during Run.
	KindUnexpected
)

// String returns a readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindIllegalState:
		return "illegal_state"
	case KindTaskFailure:
		return "task_failure"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindIllegalState:
		return ErrIllegalState
	case KindTaskFailure:
		return ErrTaskFailed
	default:
		return ErrUnexpected
	}
}

// PhaseError describes a failure raised by a phase.
//
// errors.Is matches the sentinel for Kind (ErrIllegalState, ErrTaskFailed or
// ErrUnexpected) as well as anything in the Cause chain, so a task's own error
// remains reachable:
//
//	if errors.Is(err, lifecycle.ErrTaskFailed) && errors.Is(err, ErrWidgetBroken) {
//	    ...
//	}
type PhaseError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message is the human-readable description.
	Message string

	// Stage is the stage of the failing phase.
	Stage Stage

	// Path is the path of the failing phase.
	Path string

	// ElementID identifies the element the phase was processing.
	ElementID string

	// Task names the task that failed, for task failures.
	Task string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage.String())
	if e.ElementID != "" {
		b.WriteString(" ")
		b.WriteString(e.ElementID)
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PhaseError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *PhaseError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// ConfigError reports an invalid Lifecycle option.
type ConfigError struct {
	// Message is the human-readable description.
	Message string

	// Code is a machine-readable error code, e.g. "INVALID_WORKERS".
	Code string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
