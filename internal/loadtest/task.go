package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Errors returned when building a task table.
var (
	// ErrNoTasks is returned when a task table has no tasks.
	ErrNoTasks = errors.New("loadtest: no tasks")
	// ErrInvalidWeight is returned when a task weight is not positive.
	ErrInvalidWeight = errors.New("loadtest: invalid task weight")
)

// TaskFunc is the body of a task. It issues at most a handful of requests
// through the session and returns when they complete.
type TaskFunc func(ctx context.Context, s *Session)

// Task is a named unit of work with a relative selection weight.
type Task struct {
	Name   string
	Weight int
	Fn     TaskFunc
}

// TaskTable selects tasks with probability proportional to their weight.
//
// Selection uses cumulative-weight sampling: a uniform integer in
// [1, totalWeight] is mapped to the first task whose cumulative weight
// reaches it. A TaskTable is immutable and safe for concurrent use.
type TaskTable struct {
	tasks       []Task
	cumulative  []int
	totalWeight int
}

// NewTaskTable builds a task table. Every task must have a positive weight
// and a non-nil function.
func NewTaskTable(tasks ...Task) (*TaskTable, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	t := &TaskTable{
		tasks:      make([]Task, len(tasks)),
		cumulative: make([]int, len(tasks)),
	}
	copy(t.tasks, tasks)

	for i, task := range t.tasks {
		if task.Weight <= 0 {
			return nil, fmt.Errorf("%w: task %q has weight %d", ErrInvalidWeight, task.Name, task.Weight)
		}
		if task.Fn == nil {
			return nil, fmt.Errorf("loadtest: task %q has no function", task.Name)
		}
		t.totalWeight += task.Weight
		t.cumulative[i] = t.totalWeight
	}

	return t, nil
}

// Pick selects one task using r as the random source.
func (t *TaskTable) Pick(r Rand) Task {
	if len(t.tasks) == 1 {
		return t.tasks[0]
	}

	n := r.IntRange(1, t.totalWeight)
	idx := sort.SearchInts(t.cumulative, n)
	return t.tasks[idx]
}

// Tasks returns a copy of the tasks in declaration order.
func (t *TaskTable) Tasks() []Task {
	out := make([]Task, len(t.tasks))
	copy(out, t.tasks)
	return out
}

// TotalWeight returns the sum of all task weights.
func (t *TaskTable) TotalWeight() int {
	return t.totalWeight
}

// Weights returns the task weights keyed by task name.
func (t *TaskTable) Weights() map[string]int {
	out := make(map[string]int, len(t.tasks))
	for _, task := range t.tasks {
		out[task.Name] += task.Weight
	}
	return out
}
