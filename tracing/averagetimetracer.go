package tracing

import (
	"sync"

	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/sim/timing"
)

// TotalAvgTimeTracer can collect the total and average number of slots spent
// on a certain type of tasks. Overlapping tasks are simply added together.
type TotalAvgTimeTracer struct {
	timeTeller    timing.TimeTeller
	filter        TaskFilter
	lock          sync.Mutex
	inflightTasks map[string]timing.VTimeInCycle
	totalTime     timing.VTimeInCycle
	taskCount     uint64
}

// NewAverageTimeTracer creates a new TotalAvgTimeTracer.
func NewAverageTimeTracer(
	timeTeller timing.TimeTeller,
	filter TaskFilter,
) *TotalAvgTimeTracer {
	return &TotalAvgTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]timing.VTimeInCycle),
	}
}

// Func records the start end of a task.
func (t *TotalAvgTimeTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(Task))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(Task))
	}
}

// AverageTime returns the average number of slots of the finished tasks, or
// 0 if no task has finished.
func (t *TotalAvgTimeTracer) AverageTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.taskCount == 0 {
		return 0
	}

	return float64(t.totalTime) / float64(t.taskCount)
}

// TotalTime returns the number of slots spent on the finished tasks.
func (t *TotalAvgTimeTracer) TotalTime() timing.VTimeInCycle {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// TotalCount returns the number of finished tasks.
func (t *TotalAvgTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the task start time
func (t *TotalAvgTimeTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = t.timeTeller.CurrentTime()
	t.lock.Unlock()
}

// EndTask records the end of the task
func (t *TotalAvgTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	startTime, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	t.totalTime += t.timeTeller.CurrentTime() - startTime
	t.taskCount++

	delete(t.inflightTasks, task.ID)
}
