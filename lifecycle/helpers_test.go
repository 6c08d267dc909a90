package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
)

// buildTree creates a component tree of the given width and depth below a
// root with id rootID. Child slots are named c0, c1, ...
func buildTree(rootID string, width, depth int) *Component {
	root := NewComponent(rootID)
	addLevel(root, rootID, width, depth)
	return root
}

func addLevel(parent *Component, parentID string, width, depth int) {
	if depth == 0 {
		return
	}
	for i := 0; i < width; i++ {
		name := fmt.Sprintf("c%d", i)
		id := parentID + "/" + name
		child := NewComponent(id)
		parent.AddChild(name, child)
		addLevel(child, id, width, depth-1)
	}
}

func components(root Element) []*Component {
	var out []*Component
	Walk(root, func(e Element) bool {
		if c, ok := e.(*Component); ok {
			out = append(out, c)
		}
		return true
	})
	return out
}

func newTestLifecycle(t *testing.T, view Element, opts ...Option) *Lifecycle {
	t.Helper()
	lc, err := New(NewPool(0), view, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return lc
}

// pending removes and returns the phases queued on lc's processor.
func pending(lc *Lifecycle) []*Phase {
	return lc.Processor().queue().Drain()
}

// completionCounter counts completions delivered for element.
func completionCounter(lc *Lifecycle, element Element) *atomic.Int64 {
	var n atomic.Int64
	lc.AddListener(func(ev StageEvent) {
		if ev.Element == element {
			n.Add(1)
		}
	})
	return &n
}

func noopTask(name string) Task {
	return Named(name, func(context.Context, *Phase) error { return nil })
}
