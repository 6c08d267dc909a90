package lifecycle

import "context"

// Task is an atomic unit of work executed inside a phase.
//
// Tasks run strictly sequentially on the goroutine running their phase and
// never yield to the scheduler. A task may read the phase's element, model and
// path and may only mutate state within that element's subtree. A returned
// error aborts the remaining tasks of the phase; the scheduler does not retry.
type Task interface {
	Run(ctx context.Context, p *Phase) error
}

// TaskFunc is a function adapter that implements the Task interface.
//
// Example:
//
//	setTitle := lifecycle.TaskFunc(func(ctx context.Context, p *lifecycle.Phase) error {
//	    p.Element().(*MyWidget).Title = p.Model().(*Page).Title
//	    return nil
//	})
type TaskFunc func(ctx context.Context, p *Phase) error

// Run implements the Task interface for TaskFunc.
func (f TaskFunc) Run(ctx context.Context, p *Phase) error {
	return f(ctx, p)
}

// namedTask attaches a diagnostic name to a task.
type namedTask struct {
	name string
	fn   TaskFunc
}

func (t namedTask) Run(ctx context.Context, p *Phase) error {
	return t.fn(ctx, p)
}

func (t namedTask) String() string {
	return t.name
}

// Named returns a task carrying name, which is reported in task failures and
// trace output.
func Named(name string, fn TaskFunc) Task {
	return namedTask{name: name, fn: fn}
}

// taskName returns a printable name for t.
func taskName(t Task) string {
	if s, ok := t.(interface{ String() string }); ok {
		return s.String()
	}
	return "task"
}
