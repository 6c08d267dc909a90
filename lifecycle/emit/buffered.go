package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, grouped by
// pass.
//
// Use cases:
//   - Testing and validation
//   - Post-pass analysis of completion order
//
// Warning: This emitter keeps every event. Clear passes that are no longer
// needed.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	lc, _ := lifecycle.New(pool, view, nil, lifecycle.WithEmitter(emitter))
//	_ = lc.Run(ctx)
//
//	completions := emitter.GetHistoryWithFilter(lc.PassID(), emit.HistoryFilter{Msg: emit.MsgPhaseComplete})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // passID -> events
}

// HistoryFilter specifies criteria for filtering pass history.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	ElementID string // Filter by element ID (empty = no filter)
	Msg       string // Filter by message (empty = no filter)
	Stage     string // Filter by stage name (empty = no filter)
	MinSeq    *int64 // Minimum sequence number (nil = no filter)
	MaxSeq    *int64 // Maximum sequence number (nil = no filter)
}

func (f HistoryFilter) empty() bool {
	return f.ElementID == "" && f.Msg == "" && f.Stage == "" && f.MinSeq == nil && f.MaxSeq == nil
}

func (f HistoryFilter) matches(event Event) bool {
	if f.ElementID != "" && event.ElementID != f.ElementID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.Stage != "" && event.Stage != f.Stage {
		return false
	}
	if f.MinSeq != nil && event.Seq < *f.MinSeq {
		return false
	}
	if f.MaxSeq != nil && event.Seq > *f.MaxSeq {
		return false
	}
	return true
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.PassID] = append(b.events[event.PassID], event)
}

// GetHistory returns a copy of every event recorded for passID, in emission
// order. It returns an empty slice for an unknown pass.
func (b *BufferedEmitter) GetHistory(passID string) []Event {
	return b.GetHistoryWithFilter(passID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events recorded for passID that match
// filter, in emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(passID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[passID]
	if filter.empty() {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	result := []Event{}
	for _, event := range events {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Clear removes the events of passID, or of every pass when passID is empty.
func (b *BufferedEmitter) Clear(passID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if passID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, passID)
}
