// Package emit provides pluggable observability emitters for lifecycle passes.
package emit

// Event represents an observability event emitted while a lifecycle pass runs.
//
// Pass-level events (pass_start, pass_complete, pass_error) carry an empty
// Stage, ElementID and Path. Phase-level events identify the phase by the
// stage it applies and the element and path it processes.
type Event struct {
	// PassID identifies the lifecycle pass that emitted this event.
	PassID string

	// Seq is the event's position within its pass, starting at 1.
	Seq int64

	// Stage names the stage of the emitting phase ("initialize", "render", ...).
	Stage string

	// ElementID identifies the element the phase processes.
	ElementID string

	// Path is the element path of the phase.
	Path string

	// Msg names the event.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Phase or pass duration in milliseconds
	//   - "successors": Number of successor phases spawned
	//   - "error": Error details
	//   - "kind": Error kind for phase_error
	Meta map[string]interface{}
}

// Event messages emitted by the lifecycle engine.
const (
	MsgPassStart      = "pass_start"
	MsgPassComplete   = "pass_complete"
	MsgPassError      = "pass_error"
	MsgPhaseStart     = "phase_start"
	MsgPhaseProcessed = "phase_processed"
	MsgPhaseComplete  = "phase_complete"
	MsgPhaseError     = "phase_error"
)
