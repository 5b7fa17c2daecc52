// Package model defines the core vocabulary of the engine: context tokens,
// dependencies, tasks, resources, snapshots, and typed errors. It has no
// scheduling logic of its own.
package model

import "reflect"

// ContextType identifies a context channel. Two token flavors exist: type
// tokens derived from a Go type (TypeOf) and name tokens for data-defined
// graphs (Named). Tokens are comparable and usable as map keys.
type ContextType interface {
	String() string
	contextType()
}

// typeToken identifies a channel by a Go type.
type typeToken struct {
	t reflect.Type
}

func (t typeToken) String() string { return t.t.String() }
func (typeToken) contextType()     {}

// TypeOf returns the context token for the Go type T. Calls with the same T
// always return equal tokens.
func TypeOf[T any]() ContextType {
	return typeToken{t: reflect.TypeOf((*T)(nil)).Elem()}
}

// nameToken identifies a channel by a string name.
type nameToken struct {
	name string
}

func (t nameToken) String() string { return t.name }
func (nameToken) contextType()     {}

// Named returns the context token for a string-named channel. Data-defined
// graphs use these since their channels have no Go types.
func Named(name string) ContextType {
	return nameToken{name: name}
}

// DependencyMode controls when a dependency counts as satisfied.
type DependencyMode int

const (
	// ModeAny: one arrival satisfies the dependency. A task whose any-mode
	// dependency has several providers runs once per arrival.
	ModeAny DependencyMode = iota

	// ModeAll: every known provider of the type must report before the
	// dependency is satisfied. The task then sees the latest value.
	ModeAll
)

func (m DependencyMode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Dependency is one declared context requirement of a task.
type Dependency struct {
	Type ContextType
	Mode DependencyMode
}

// AnyOf declares an any-mode dependency on the Go type T.
func AnyOf[T any]() Dependency {
	return Dependency{Type: TypeOf[T](), Mode: ModeAny}
}

// AllOf declares an all-mode dependency on the Go type T.
func AllOf[T any]() Dependency {
	return Dependency{Type: TypeOf[T](), Mode: ModeAll}
}

// Tick is the built-in per-frame context value. The scheduler provides
// exactly one Tick at each frame boundary; tasks that should run once per
// frame without other inputs depend on it.
type Tick struct {
	// Frame is the 1-based frame counter.
	Frame uint64
}
