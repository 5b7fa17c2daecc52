package scheduler

import (
	"github.com/me/frameloop/internal/worker"
	"github.com/me/frameloop/pkg/model"
)

// Command is a message on the loop's inbound channel. Host commands and
// worker completions share one channel so the loop processes them in arrival
// order, and commands always drain fully before any dispatch work.
type Command interface {
	command()
}

// ScheduleCmd registers a task. The loop validates the task's requirements
// and replies with a ConfigError or nil.
type ScheduleCmd struct {
	ID    model.TaskID
	Task  model.Task
	Reply chan<- error
}

// UnscheduleCmd removes a task from the pool.
type UnscheduleCmd struct {
	ID    model.TaskID
	Reply chan<- error
}

// StoreCmd sets a long-lived singleton context value.
type StoreCmd struct {
	Type  model.ContextType
	Value any
}

// DiscardCmd clears a context value.
type DiscardCmd struct {
	Type model.ContextType
}

// RegisterCmd declares expected per-frame providers for a type, optionally
// tagging it with an execution state.
type RegisterCmd struct {
	Type     model.ContextType
	Expected int
	State    model.ContextType
}

// ProvideCmd records a host-produced value for the current frame.
type ProvideCmd struct {
	Type  model.ContextType
	Value any
}

// TickCmd requests a frame advance. Equivalent to providing a model.Tick:
// the loop acts on it only once all previously dispatched tasks completed,
// then provides the Tick value into the fresh frame.
type TickCmd struct{}

// SetStateCmd queues an execution-state transition, committed at the next
// frame boundary.
type SetStateCmd struct {
	State model.ContextType
}

// WatchCmd subscribes the host to the next value of Type (or the next value
// of any type when Type is nil). The channel receives exactly one value.
type WatchCmd struct {
	Type  model.ContextType
	Reply chan<- any
}

// StatsCmd requests a consistent snapshot of loop statistics.
type StatsCmd struct {
	Reply chan<- Stats
}

// KillCmd tears the loop down. The loop waits for in-flight tasks, stops
// the workers, and closes Done.
type KillCmd struct {
	Done chan<- struct{}
}

// completionCmd is a worker's report re-entering the loop.
type completionCmd struct {
	c worker.Completion
}

func (ScheduleCmd) command()   {}
func (UnscheduleCmd) command() {}
func (StoreCmd) command()      {}
func (DiscardCmd) command()    {}
func (RegisterCmd) command()   {}
func (ProvideCmd) command()    {}
func (TickCmd) command()       {}
func (SetStateCmd) command()   {}
func (WatchCmd) command()      {}
func (StatsCmd) command()      {}
func (KillCmd) command()       {}
func (completionCmd) command() {}
