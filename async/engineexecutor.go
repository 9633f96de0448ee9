package async

import "github.com/sarchlab/ranstack/sim/timing"

// EngineExecutor runs tasks as events of a simulation engine, in the current
// cycle. It must be used from the goroutine that runs the engine.
type EngineExecutor struct {
	engine timing.EventScheduler
}

// NewEngineExecutor creates an executor that posts tasks to engine.
func NewEngineExecutor(engine timing.EventScheduler) *EngineExecutor {
	return &EngineExecutor{engine: engine}
}

// Execute schedules the task at the current cycle.
func (e *EngineExecutor) Execute(task func()) bool {
	e.engine.Schedule(timing.ScheduledEvent{
		Event:   timing.FuncEvent{Fn: task},
		Time:    e.engine.CurrentTime(),
		Handler: timing.FuncHandler{},
	})

	return true
}
