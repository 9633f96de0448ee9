package tracing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/datarecording"
	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/sim/timing"
)

// Table names used by the ProcedureRecorder.
const (
	ProcedureTable     = "procedure"
	ProcedureStepTable = "procedure_step"
)

// ProcedureRow is the record of a finished task.
type ProcedureRow struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartSlot uint64
	EndSlot   uint64
}

// ProcedureStepRow is the record of a step of a task.
type ProcedureStepRow struct {
	TaskID string
	Slot   uint64
	What   string
	Detail string
}

// ProcedureRecorder is a hook that stores the tasks it observes into a data
// recorder. A task is written when it ends.
type ProcedureRecorder struct {
	timeTeller   timing.TimeTeller
	backend      datarecording.DataRecorder
	logger       logr.Logger
	lock         sync.Mutex
	tracingTasks map[string]Task
}

// NewProcedureRecorder creates the procedure tables and returns a recorder
// that fills them.
func NewProcedureRecorder(
	timeTeller timing.TimeTeller,
	backend datarecording.DataRecorder,
	logger logr.Logger,
) (*ProcedureRecorder, error) {
	if err := backend.CreateTable(ProcedureTable, ProcedureRow{}); err != nil {
		return nil, fmt.Errorf("procedure recorder: %w", err)
	}

	if err := backend.CreateTable(ProcedureStepTable, ProcedureStepRow{}); err != nil {
		return nil, fmt.Errorf("procedure recorder: %w", err)
	}

	return &ProcedureRecorder{
		timeTeller:   timeTeller,
		backend:      backend,
		logger:       logger,
		tracingTasks: make(map[string]Task),
	}, nil
}

// Func records the start, steps, and end of a task.
func (t *ProcedureRecorder) Func(ctx hooking.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(task)
	case HookPosTaskStep:
		t.StepTask(task)
	case HookPosTaskEnd:
		t.EndTask(task)
	}
}

// StartTask marks the start of a task.
func (t *ProcedureRecorder) StartTask(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	task.StartTime = t.timeTeller.CurrentTime()
	task.Steps = nil

	t.lock.Lock()
	t.tracingTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask appends the steps carried by a partial task to the task of the
// same ID.
func (t *ProcedureRecorder) StepTask(partial Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	task, ok := t.tracingTasks[partial.ID]
	if !ok {
		return
	}

	now := t.timeTeller.CurrentTime()
	for _, step := range partial.Steps {
		step.Time = now
		task.Steps = append(task.Steps, step)
	}

	t.tracingTasks[partial.ID] = task
}

// EndTask marks the end of a task and writes it.
func (t *ProcedureRecorder) EndTask(partial Task) {
	t.lock.Lock()
	task, ok := t.tracingTasks[partial.ID]
	delete(t.tracingTasks, partial.ID)
	t.lock.Unlock()

	if !ok {
		return
	}

	task.EndTime = t.timeTeller.CurrentTime()
	t.write(task)
}

func (t *ProcedureRecorder) write(task Task) {
	err := t.backend.InsertData(ProcedureTable, ProcedureRow{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartSlot: uint64(task.StartTime),
		EndSlot:   uint64(task.EndTime),
	})
	if err != nil {
		t.logger.Error(err, "recording procedure", "id", task.ID)
		return
	}

	for _, step := range task.Steps {
		err := t.backend.InsertData(ProcedureStepTable, ProcedureStepRow{
			TaskID: task.ID,
			Slot:   uint64(step.Time),
			What:   step.What,
			Detail: step.Detail,
		})
		if err != nil {
			t.logger.Error(err, "recording procedure step", "id", task.ID)
			return
		}
	}
}

// Terminate writes the unfinished tasks with the current time as their end
// and flushes the backend.
func (t *ProcedureRecorder) Terminate() error {
	t.lock.Lock()
	ids := make([]string, 0, len(t.tracingTasks))
	for id := range t.tracingTasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, t.tracingTasks[id])
	}
	t.tracingTasks = make(map[string]Task)
	t.lock.Unlock()

	now := t.timeTeller.CurrentTime()
	for _, task := range tasks {
		task.EndTime = now
		t.write(task)
	}

	return t.backend.Flush()
}
