// Package arbiter grants or denies resource locks to tasks before dispatch.
// Acquisition is all-or-nothing: either every resource in a task's declared
// set is granted, or none is. Because a task's resource needs are static and
// declared ahead of dispatch, circular waits cannot arise from the arbiter's
// own operations.
package arbiter

import (
	"github.com/me/frameloop/pkg/model"
)

// Arbiter tracks which resources are currently held. It is owned by the
// scheduler goroutine and needs no internal locking.
type Arbiter struct {
	readers map[string]int
	writers map[string]bool
}

// New returns an empty arbiter.
func New() *Arbiter {
	return &Arbiter{
		readers: make(map[string]int),
		writers: make(map[string]bool),
	}
}

// Lock attempts to acquire every resource in set. On any conflict it
// acquires nothing and returns false. A resource supports many concurrent
// shared holders or exactly one exclusive holder.
func (a *Arbiter) Lock(set []model.Resource) bool {
	for _, r := range set {
		if a.writers[r.Name] {
			return false
		}
		if r.Mode == model.AccessExclusive && a.readers[r.Name] > 0 {
			return false
		}
	}
	for _, r := range set {
		switch r.Mode {
		case model.AccessExclusive:
			a.writers[r.Name] = true
		default:
			a.readers[r.Name]++
		}
	}
	return true
}

// Unlock releases every resource in set. It must be called with the same
// set that was passed to a successful Lock.
func (a *Arbiter) Unlock(set []model.Resource) {
	for _, r := range set {
		switch r.Mode {
		case model.AccessExclusive:
			delete(a.writers, r.Name)
		default:
			if a.readers[r.Name] > 1 {
				a.readers[r.Name]--
			} else {
				delete(a.readers, r.Name)
			}
		}
	}
}

// Held reports whether any holder (shared or exclusive) currently has the
// named resource.
func (a *Arbiter) Held(name string) bool {
	return a.writers[name] || a.readers[name] > 0
}
