package lifecycle

import (
	"strings"
	"sync"
)

// Element is a node of the component tree driven through the lifecycle.
//
// The tree is owned by the surrounding component system; phases only hold
// pass-scoped references to elements. Implementations must tolerate
// NotifyCompleted being called from a different goroutine than the one that
// ran the element's phase.
type Element interface {
	// ID identifies the element for diagnostics.
	ID() string

	// Status returns the element's current stage-status.
	Status() Status

	// SetStatus records the stage-status the element has reached.
	SetStatus(Status)

	// Path returns the element's path relative to the view root.
	Path() string

	// SetPath updates the element's path relative to the view root.
	SetPath(string)

	// Parent returns the element's parent, or nil for the root.
	Parent() Element

	// Children returns the element's named child slots. Nil entries are
	// permitted and skipped by the scheduler.
	Children() []Child

	// NotifyCompleted is invoked once a phase over this element, and every
	// phase spawned from it, has completed.
	NotifyCompleted(p *Phase)
}

// Child is a named child slot of an element.
type Child struct {
	Name    string
	Element Element
}

// TaskProvider is implemented by elements that contribute their own tasks to
// a stage. Provided tasks run after the tasks registered on the Lifecycle.
type TaskProvider interface {
	Tasks(stage Stage) []Task
}

// JoinPath appends a child slot name to a parent path.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// ResolvePath walks named child slots from root following the dot separated
// path and returns the element found there, or nil when no element sits at
// that path. An empty path resolves to root.
func ResolvePath(root Element, path string) Element {
	if root == nil {
		return nil
	}
	if path == "" {
		return root
	}

	current := root
	for _, segment := range strings.Split(path, ".") {
		var next Element
		for _, child := range current.Children() {
			if child.Name == segment {
				next = child.Element
				break
			}
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}

// Component is a minimal mutable Element used by drivers that have no element
// model of their own, and by tests.
type Component struct {
	mu         sync.Mutex
	id         string
	status     Status
	path       string
	parent     Element
	children   []Child
	tasks      map[Stage][]Task
	completed  []Stage
	onComplete func(*Phase)
}

// NewComponent creates a component in CREATED status.
func NewComponent(id string) *Component {
	return &Component{
		id:    id,
		tasks: make(map[Stage][]Task),
	}
}

// AddChild appends a named child slot and sets the child's parent when the
// child is a *Component. It returns c for chaining.
func (c *Component) AddChild(name string, child Element) *Component {
	if cc, ok := child.(*Component); ok && cc != nil {
		cc.mu.Lock()
		cc.parent = c
		cc.mu.Unlock()
	}

	c.mu.Lock()
	c.children = append(c.children, Child{Name: name, Element: child})
	c.mu.Unlock()
	return c
}

// AddTask registers a task the component contributes to stage.
func (c *Component) AddTask(stage Stage, task Task) *Component {
	c.mu.Lock()
	c.tasks[stage] = append(c.tasks[stage], task)
	c.mu.Unlock()
	return c
}

// OnComplete installs a hook invoked from NotifyCompleted.
func (c *Component) OnComplete(fn func(*Phase)) *Component {
	c.mu.Lock()
	c.onComplete = fn
	c.mu.Unlock()
	return c
}

// ID implements Element.
func (c *Component) ID() string {
	return c.id
}

// Status implements Element.
func (c *Component) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetStatus implements Element.
func (c *Component) SetStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Path implements Element.
func (c *Component) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// SetPath implements Element.
func (c *Component) SetPath(path string) {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
}

// Parent implements Element.
func (c *Component) Parent() Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

// Children implements Element. The returned slice is a copy.
func (c *Component) Children() []Child {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Child, len(c.children))
	copy(out, c.children)
	return out
}

// Tasks implements TaskProvider.
func (c *Component) Tasks(stage Stage) []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := c.tasks[stage]
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// NotifyCompleted implements Element.
func (c *Component) NotifyCompleted(p *Phase) {
	c.mu.Lock()
	c.completed = append(c.completed, p.Stage())
	hook := c.onComplete
	c.mu.Unlock()

	if hook != nil {
		hook(p)
	}
}

// CompletedStages returns the stages whose completion has been delivered to
// the component, in delivery order.
func (c *Component) CompletedStages() []Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stage, len(c.completed))
	copy(out, c.completed)
	return out
}

// Walk visits root and every descendant reachable through child slots in
// depth-first pre-order, stopping early when visit returns false.
func Walk(root Element, visit func(Element) bool) {
	if root == nil {
		return
	}
	stack := []Element{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(e) {
			return
		}
		children := e.Children()
		for i := len(children) - 1; i >= 0; i-- {
			if children[i].Element != nil {
				stack = append(stack, children[i].Element)
			}
		}
	}
}
