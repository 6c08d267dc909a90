package emit

// Emitter receives observability events from lifecycle passes.
//
// Implementations must be safe for concurrent use: phases on disjoint
// subtrees emit from different workers at the same time. Emit must not block
// the pass for long and must not panic.
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// Multi fans every event out to each of the given emitters in order.
// Nil emitters are skipped.
func Multi(emitters ...Emitter) Emitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
