package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing one line per event to a writer.
//
// Supports two output modes:
//   - Text mode (default): Human-readable format with key=value pairs
//   - JSON mode: Machine-readable JSON format, one event per line
//
// Example text output:
//
//	[phase_complete] passID=7c1e... seq=12 stage=render elementID=form path=body.form
//
// Example JSON output:
//
//	{"passID":"7c1e...","seq":12,"stage":"render","elementID":"form","path":"body.form","msg":"phase_complete","meta":null}
//
// Writes are serialized so lines from concurrent workers do not interleave.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter writing to writer, or os.Stdout when
// writer is nil.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes an event to the configured writer.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		PassID    string                 `json:"passID"`
		Seq       int64                  `json:"seq"`
		Stage     string                 `json:"stage"`
		ElementID string                 `json:"elementID"`
		Path      string                 `json:"path"`
		Msg       string                 `json:"msg"`
		Meta      map[string]interface{} `json:"meta"`
	}{
		PassID:    event.PassID,
		Seq:       event.Seq,
		Stage:     event.Stage,
		ElementID: event.ElementID,
		Path:      event.Path,
		Msg:       event.Msg,
		Meta:      event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}

	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] passID=%s seq=%d", event.Msg, event.PassID, event.Seq)
	if event.Stage != "" {
		fmt.Fprintf(l.writer, " stage=%s elementID=%s path=%s", event.Stage, event.ElementID, event.Path)
	}

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
