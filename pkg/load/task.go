package load

import (
	"context"
	"fmt"
)

// Scenario is one iteration of a virtual user's journey. vu is the 1-based
// virtual user running it.
type Scenario func(ctx context.Context, vu int) error

// iterationTask runs one scenario iteration
type iterationTask struct {
	id       string
	scenario Scenario
}

func newIterationTask(n int, scenario Scenario) *iterationTask {
	return &iterationTask{id: fmt.Sprintf("iteration-%d", n), scenario: scenario}
}

// Execute runs the scenario as the worker that picked the task up
func (t *iterationTask) Execute(ctx context.Context) error {
	if t.scenario == nil {
		return fmt.Errorf("task %s has no scenario", t.id)
	}
	return t.scenario(ctx, WorkerID(ctx))
}

// ID returns the task ID
func (t *iterationTask) ID() string {
	return t.id
}
