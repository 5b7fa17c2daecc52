package sched

import (
	"fmt"

	"github.com/me/frameloop/pkg/model"
)

// Typed sugar over the Manager's token-based methods. Each function derives
// its context token from the type parameter, so callers never touch tokens
// directly when the value types are known at compile time.

// Register declares that expected providers will produce T per frame.
func Register[T any](m *Manager, expected int) {
	m.RegisterType(model.TypeOf[T](), expected, nil)
}

// RegisterWithState registers T and tags it with state S: providing a T
// requests a transition to S at the next frame boundary.
func RegisterWithState[T any, S any](m *Manager, expected int) {
	m.RegisterType(model.TypeOf[T](), expected, model.TypeOf[S]())
}

// Provide records a host-produced value of T for the current frame.
func Provide[T any](m *Manager, v T) {
	m.ProvideValue(model.TypeOf[T](), v)
}

// StoreValue sets a long-lived singleton of type T.
func StoreValue[T any](m *Manager, v T) {
	m.StoreValueFor(model.TypeOf[T](), v)
}

// Discard clears any value held for T.
func Discard[T any](m *Manager) {
	m.DiscardType(model.TypeOf[T]())
}

// SetState queues a transition to the execution state S.
func SetState[S any](m *Manager) {
	m.SetStateType(model.TypeOf[S]())
}

// WaitFor blocks until the next T is provided and returns it downcast.
func WaitFor[T any](m *Manager) (T, error) {
	var zero T
	v, err := m.WaitForType(model.TypeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("value for %s has unexpected dynamic type %T", model.TypeOf[T](), v)
	}
	return typed, nil
}
