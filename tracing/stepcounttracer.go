package tracing

import (
	"sync"

	"github.com/sarchlab/ranstack/sim/hooking"
)

// StepCountTracer counts how many times each step outcome is reached. Steps
// are keyed by "what" or, when a detail is attached, "what:detail".
type StepCountTracer struct {
	lock      sync.Mutex
	stepNames []string
	stepCount map[string]uint64
}

// NewStepCountTracer creates a new StepCountTracer.
func NewStepCountTracer() *StepCountTracer {
	return &StepCountTracer{
		stepCount: make(map[string]uint64),
	}
}

// Func counts the steps of a task.
func (t *StepCountTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosTaskStep {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	for _, step := range ctx.Item.(Task).Steps {
		key := step.What
		if step.Detail != "" {
			key += ":" + step.Detail
		}

		if _, ok := t.stepCount[key]; !ok {
			t.stepNames = append(t.stepNames, key)
		}

		t.stepCount[key]++
	}
}

// StepNames returns the step keys in the order they were first seen.
func (t *StepCountTracer) StepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.stepNames...)
}

// StepCount returns the number of times a step key was reached.
func (t *StepCountTracer) StepCount(key string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stepCount[key]
}
