package arbiter

import (
	"testing"

	"github.com/me/frameloop/pkg/model"
)

func TestLock_Exclusive(t *testing.T) {
	a := New()

	if !a.Lock([]model.Resource{model.Exclusive("world")}) {
		t.Fatal("first exclusive lock should succeed")
	}
	if a.Lock([]model.Resource{model.Exclusive("world")}) {
		t.Error("second exclusive lock should fail")
	}
	if a.Lock([]model.Resource{model.Shared("world")}) {
		t.Error("shared lock on exclusively held resource should fail")
	}

	a.Unlock([]model.Resource{model.Exclusive("world")})
	if !a.Lock([]model.Resource{model.Exclusive("world")}) {
		t.Error("lock after unlock should succeed")
	}
}

func TestLock_SharedReaders(t *testing.T) {
	a := New()

	if !a.Lock([]model.Resource{model.Shared("world")}) {
		t.Fatal("first shared lock should succeed")
	}
	if !a.Lock([]model.Resource{model.Shared("world")}) {
		t.Fatal("second shared lock should succeed")
	}
	if a.Lock([]model.Resource{model.Exclusive("world")}) {
		t.Error("exclusive lock with active readers should fail")
	}

	a.Unlock([]model.Resource{model.Shared("world")})
	if a.Lock([]model.Resource{model.Exclusive("world")}) {
		t.Error("exclusive lock with one remaining reader should fail")
	}

	a.Unlock([]model.Resource{model.Shared("world")})
	if !a.Lock([]model.Resource{model.Exclusive("world")}) {
		t.Error("exclusive lock after all readers left should succeed")
	}
}

// All-or-nothing: a conflicting resource anywhere in the set must leave every
// resource unacquired.
func TestLock_AllOrNothing(t *testing.T) {
	a := New()

	if !a.Lock([]model.Resource{model.Exclusive("renderer")}) {
		t.Fatal("setup lock failed")
	}

	set := []model.Resource{model.Exclusive("world"), model.Exclusive("renderer")}
	if a.Lock(set) {
		t.Fatal("lock with one conflicting resource should fail")
	}
	if a.Held("world") {
		t.Error("failed lock must not leave world held")
	}

	a.Unlock([]model.Resource{model.Exclusive("renderer")})
	if !a.Lock(set) {
		t.Error("lock should succeed once the conflict is gone")
	}
}

func TestUnlock_ReleasesWholeSet(t *testing.T) {
	a := New()
	set := []model.Resource{model.Exclusive("world"), model.Shared("assets")}

	if !a.Lock(set) {
		t.Fatal("lock failed")
	}
	a.Unlock(set)

	if a.Held("world") || a.Held("assets") {
		t.Error("resources still held after Unlock")
	}
}
