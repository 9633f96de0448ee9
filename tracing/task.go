package tracing

import "github.com/sarchlab/ranstack/sim/timing"

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time   timing.VTimeInCycle `json:"time"`
	What   string              `json:"what"`
	Detail string              `json:"detail"`
}

// A Task is a task
type Task struct {
	ID        string              `json:"id"`
	ParentID  string              `json:"parent_id"`
	Kind      string              `json:"kind"`
	What      string              `json:"what"`
	Where     string              `json:"where"`
	StartTime timing.VTimeInCycle `json:"start_time"`
	EndTime   timing.VTimeInCycle `json:"end_time"`
	Steps     []TaskStep          `json:"steps"`
	Detail    any                 `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool
