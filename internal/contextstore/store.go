// Package contextstore holds the latest produced value for every context
// type, tracks per-frame provider counts, and answers dependency-satisfaction
// queries. It is the only mutable state shared between the scheduler
// goroutine and the host, so every operation is mutex-guarded.
package contextstore

import (
	"log/slog"
	"sync"

	"github.com/me/frameloop/pkg/model"
)

// entry is the bookkeeping for one context type.
type entry struct {
	value    any
	hasValue bool

	// expected is the host-registered provider count; computed is the
	// count derived from the execution queue at the last rebuild. The
	// computed count wins when non-zero, so task-driven types track the
	// graph while host-fed types keep their registration. received is how
	// many providers have reported so far this frame.
	expected int
	computed int
	received int

	// stateTag, when set, requests a state transition whenever a value of
	// this type is provided. The transition is committed at the next frame
	// boundary.
	stateTag model.ContextType

	// global entries are long-lived singletons set via StoreValue. They
	// survive frame resets and satisfy dependencies whenever a value is
	// present.
	global bool
}

// effectiveExpected is the provider count all-mode checks use.
func (e *entry) effectiveExpected() int {
	if e.computed > 0 {
		return e.computed
	}
	return e.expected
}

// Store is the typed context store.
type Store struct {
	mu      sync.RWMutex
	entries map[model.ContextType]*entry

	active       model.ContextType
	pendingState model.ContextType
	statePending bool

	logger *slog.Logger
}

// New returns an empty store.
func New(logger *slog.Logger) *Store {
	return &Store{
		entries: make(map[model.ContextType]*entry),
		logger:  logger.With("component", "contextstore"),
	}
}

func (s *Store) get(t model.ContextType) *entry {
	e, ok := s.entries[t]
	if !ok {
		e = &entry{}
		s.entries[t] = e
	}
	return e
}

// Register declares that expected providers will produce values of type t
// each frame. Idempotent; the last registration for a type wins.
func (s *Store) Register(t model.ContextType, expected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(t).expected = expected
}

// RegisterWithState registers t and tags it with a state: providing a value
// of t requests a transition to that state at the next frame boundary.
func (s *Store) RegisterWithState(t model.ContextType, expected int, state model.ContextType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(t)
	e.expected = expected
	e.stateTag = state
}

// StoreValue sets a long-lived singleton value for t. Singletons survive
// frame resets and are cleared only by Discard.
func (s *Store) StoreValue(t model.ContextType, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(t)
	e.value = v
	e.hasValue = true
	e.global = true
}

// Discard clears the value for t, including singletons.
func (s *Store) Discard(t model.ContextType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[t]
	if !ok {
		return
	}
	e.value = nil
	e.hasValue = false
	e.global = false
	e.received = 0
}

// Provide records that a provider produced a value of t this frame. It
// stores the value, increments the received count, and — if t carries a
// state tag — requests the tagged state.
func (s *Store) Provide(t model.ContextType, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(t)
	e.value = v
	e.hasValue = true
	e.received++
	if e.stateTag != nil {
		s.pendingState = e.stateTag
		s.statePending = true
	}
}

// Known reports whether t has ever been registered, stored, or provided.
func (s *Store) Known(t model.ContextType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[t]
	return ok
}

// Get returns the current value for t, if any. Exposed to the host for
// non-blocking reads; scheduling decisions never use it.
func (s *Store) Get(t model.ContextType) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[t]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Received returns this frame's received count for t.
func (s *Store) Received(t model.ContextType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[t]
	if !ok {
		return 0
	}
	return e.received
}

// Match checks every requirement against the current frame state and, when
// all are satisfied, returns a frozen snapshot of their values.
//
// runs is how many times the requesting task has already been dispatched
// this frame: an any-mode requirement needs received >= runs+1, so each run
// consumes one provider arrival. An all-mode requirement needs received to
// equal the expected provider count. Singletons satisfy either mode whenever
// a value is present.
func (s *Store) Match(reqs []model.Dependency, runs int) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[model.ContextType]any, len(reqs))
	for _, req := range reqs {
		e, ok := s.entries[req.Type]
		if !ok || !e.hasValue {
			return nil, false
		}
		if !e.global {
			switch req.Mode {
			case model.ModeAll:
				exp := e.effectiveExpected()
				if exp == 0 || e.received != exp {
					return nil, false
				}
			default:
				if e.received < runs+1 {
					return nil, false
				}
			}
		}
		values[req.Type] = e.value
	}
	return model.NewSnapshot(values), true
}

// ResetData begins a new frame: per-frame received counts and values are
// cleared. Singletons are untouched.
func (s *Store) ResetData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.global {
			continue
		}
		e.received = 0
		e.value = nil
		e.hasValue = false
	}
}

// SetExpected replaces the queue-derived provider counts after an
// execution-queue rebuild. Counts from the previous build are discarded
// first, so a type whose providers all left the graph falls back to its
// host registration (if any).
func (s *Store) SetExpected(counts map[model.ContextType]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.computed = 0
	}
	for t, n := range counts {
		s.get(t).computed = n
	}
}

// RequestState queues a state transition to be committed at the next frame
// boundary.
func (s *Store) RequestState(state model.ContextType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingState = state
	s.statePending = true
}

// ApplyStateChanges commits a pending state transition and reports whether
// the active state changed. Deferring the commit to the frame boundary keeps
// mid-frame dependency resolution stable.
func (s *Store) ApplyStateChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.statePending {
		return false
	}
	s.statePending = false
	if s.pendingState == s.active {
		return false
	}
	s.active = s.pendingState
	s.logger.Debug("state committed", "state", stateName(s.active))
	return true
}

// ActiveState returns the committed execution state. A nil state is the
// default state.
func (s *Store) ActiveState() model.ContextType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func stateName(t model.ContextType) string {
	if t == nil {
		return "default"
	}
	return t.String()
}
