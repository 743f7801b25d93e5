// Package loadtest provides the virtual user runtime: behaviors, sessions,
// weighted task tables, and the scheduler that runs users concurrently.
package loadtest

import (
	"context"
	"fmt"
	"time"
)

// Behavior defines what a virtual user does during its lifetime.
//
// A user runs OnStart once, then repeatedly picks a task from Tasks, runs it
// and pauses for WaitTime, and finally runs OnStop once.
type Behavior interface {
	OnStart(ctx context.Context, s *Session)
	Tasks() *TaskTable
	WaitTime() WaitTime
	OnStop(ctx context.Context, s *Session)
}

// UserClass is a named behavior with a spawn weight.
type UserClass struct {
	Name     string
	Weight   int
	Behavior Behavior
}

// Validate checks that the class can be spawned.
func (c UserClass) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("loadtest: user class has no name")
	}
	if c.Weight <= 0 {
		return fmt.Errorf("%w: user class %q has weight %d", ErrInvalidWeight, c.Name, c.Weight)
	}
	if c.Behavior == nil {
		return fmt.Errorf("loadtest: user class %q has no behavior", c.Name)
	}
	if c.Behavior.Tasks() == nil {
		return fmt.Errorf("loadtest: user class %q: %w", c.Name, ErrNoTasks)
	}
	return nil
}

// RunOnce picks one task from b, runs it and returns the task name and the
// pause that should follow. Runtimes that own the wait themselves use it.
func RunOnce(ctx context.Context, b Behavior, s *Session) (string, time.Duration) {
	task := b.Tasks().Pick(s.Faker)
	task.Fn(ctx, s)

	var wait time.Duration
	if wt := b.WaitTime(); wt != nil {
		wait = wt(s.Faker)
	}
	return task.Name, wait
}
