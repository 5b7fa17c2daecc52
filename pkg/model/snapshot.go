package model

import "fmt"

// Snapshot is the frozen set of context values a task sees for one run.
// It is captured at the moment the task becomes dispatchable; later updates
// to the context store do not change it. Values are shared, not copied —
// tasks must not mutate them in place.
type Snapshot struct {
	values map[ContextType]any
}

// NewSnapshot builds a snapshot from resolved values. The map is copied so
// the caller may keep mutating its own map.
func NewSnapshot(values map[ContextType]any) *Snapshot {
	copied := make(map[ContextType]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Snapshot{values: copied}
}

// Value returns the resolved value for a context token.
func (s *Snapshot) Value(t ContextType) (any, bool) {
	v, ok := s.values[t]
	return v, ok
}

// Len returns the number of resolved dependencies in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.values)
}

// FetchAs downcasts the snapshot value for the Go type T. It fails if the
// snapshot does not contain T, which means the task did not declare it as a
// requirement.
func FetchAs[T any](s *Snapshot) (T, error) {
	var zero T
	v, ok := s.values[TypeOf[T]()]
	if !ok {
		return zero, fmt.Errorf("snapshot has no value for %s", TypeOf[T]())
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("snapshot value for %s has unexpected dynamic type %T", TypeOf[T](), v)
	}
	return typed, nil
}
