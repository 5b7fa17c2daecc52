package model

import "github.com/google/uuid"

// TaskID uniquely identifies a registered task. It is stable across
// re-scheduling: removing and re-adding a task yields a new identity.
type TaskID string

// NewTaskID returns a fresh task identity.
func NewTaskID() TaskID {
	return TaskID("task_" + uuid.New().String())
}

// AccessMode distinguishes shared readers from an exclusive holder of a
// resource.
type AccessMode int

const (
	AccessShared AccessMode = iota
	AccessExclusive
)

func (m AccessMode) String() string {
	switch m {
	case AccessShared:
		return "shared"
	case AccessExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// Resource names a mutual-exclusion token a task must hold while running.
type Resource struct {
	Name string
	Mode AccessMode
}

// Shared declares shared (read) access to a named resource.
func Shared(name string) Resource {
	return Resource{Name: name, Mode: AccessShared}
}

// Exclusive declares exclusive (write) access to a named resource.
func Exclusive(name string) Resource {
	return Resource{Name: name, Mode: AccessExclusive}
}

// Task is a unit of schedulable work. Implementations declare their typed
// context requirements, output channel, resource locks, and the execution
// states they are gated on. Run is invoked on a worker goroutine with a
// frozen dependency snapshot; it must treat snapshot values as immutable.
type Task interface {
	// Name is a human-readable label used in logs and traces.
	Name() string

	// Requirements lists the context dependencies that must be satisfied
	// before the task is dispatched.
	Requirements() []Dependency

	// Output is the context channel the task's result is provided on.
	// A nil output means the task produces nothing.
	Output() ContextType

	// Locks lists the resources the task needs while running. Acquisition
	// is all-or-nothing.
	Locks() []Resource

	// States lists the execution states the task is gated on. An empty
	// list means the task is eligible in every state.
	States() []ContextType

	// Run executes the task against a frozen dependency snapshot and
	// returns the produced output value.
	Run(snap *Snapshot) (any, error)
}
