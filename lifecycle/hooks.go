package lifecycle

// StageHooks carries the stage-specific behavior of phases: which tasks a
// phase runs and which successor phases it spawns. A nil field falls back to
// the default for that concern.
//
// Example, a render stage whose phases never fan out:
//
//	lc, _ := lifecycle.New(pool, view, model,
//	    lifecycle.WithStageHooks(lifecycle.StageRender, lifecycle.StageHooks{
//	        BuildSuccessors: lifecycle.NoSuccessors,
//	    }),
//	)
type StageHooks struct {
	// BuildTasks returns the task queue for p. Defaults to DefaultTasks.
	BuildTasks func(p *Phase) []Task

	// BuildSuccessors returns the successor phases for p, already prepared.
	// Defaults to ChildSuccessors.
	BuildSuccessors func(p *Phase) ([]*Phase, error)
}

func (h StageHooks) buildTasks(p *Phase) []Task {
	if h.BuildTasks != nil {
		return h.BuildTasks(p)
	}
	return DefaultTasks(p)
}

func (h StageHooks) buildSuccessors(p *Phase) ([]*Phase, error) {
	if h.BuildSuccessors != nil {
		return h.BuildSuccessors(p)
	}
	return ChildSuccessors(p)
}

// DefaultTasks returns the tasks registered on the phase's lifecycle for its
// stage followed by the tasks the element provides, when it implements
// TaskProvider.
func DefaultTasks(p *Phase) []Task {
	tasks := p.lc.tasksFor(p.stage)
	if provider, ok := p.element.(TaskProvider); ok {
		tasks = append(tasks, provider.Tasks(p.stage)...)
	}
	return tasks
}

// ChildSuccessors prepares one phase of the same stage for every child of the
// phase's element. Nil children and children that have already reached the
// stage's end status are skipped.
func ChildSuccessors(p *Phase) ([]*Phase, error) {
	children := p.element.Children()
	successors := make([]*Phase, 0, len(children))

	for _, child := range children {
		if child.Element == nil || !child.Element.Status().Before(p.stage.End()) {
			continue
		}
		successor, err := p.lc.NewPhase(p.stage, child.Element, JoinPath(p.path, child.Name), p.element, nil)
		if err != nil {
			p.lc.releaseAll(successors)
			return nil, err
		}
		successors = append(successors, successor)
	}
	return successors, nil
}

// NoSuccessors is a BuildSuccessors hook for stages that do not descend into
// child elements.
func NoSuccessors(*Phase) ([]*Phase, error) {
	return nil, nil
}
