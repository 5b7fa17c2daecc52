// Package taskpool owns task instances between dispatches. It answers which
// tasks are eligible for a given execution state, tracks whether the task
// graph changed since the last queue build, and computes per-frame provider
// counts including any-mode fan-out multiplication.
//
// The pool is accessed only by the scheduler goroutine and needs no locking.
package taskpool

import (
	"errors"
	"log/slog"
	"time"

	"github.com/me/frameloop/pkg/model"
)

// Entry wraps a task with its scheduling metadata.
type Entry struct {
	ID   model.TaskID
	Task model.Task

	// Scheduled is set once the task's dependencies matched this frame and
	// a snapshot was captured; it survives lock-contention retries and is
	// cleared on dispatch and at frame boundaries.
	Scheduled bool
	Snapshot  *model.Snapshot

	// Runs counts dispatches this frame. Multiplicity is how many times
	// the task is expected to run per frame (1 unless an upstream
	// any-mode type fans out); it is recomputed on queue rebuilds.
	Runs         int
	Multiplicity int

	// Lifetime statistics.
	Dispatches   uint64
	LastDuration time.Duration

	taken   bool
	removed bool
}

// Pool is the registry of all known tasks.
type Pool struct {
	entries map[model.TaskID]*Entry
	order   []model.TaskID
	changed bool
	logger  *slog.Logger
}

// New returns an empty pool.
func New(logger *slog.Logger) *Pool {
	return &Pool{
		entries: make(map[model.TaskID]*Entry),
		logger:  logger.With("component", "taskpool"),
	}
}

// Store inserts a new task entry and marks the graph changed.
func (p *Pool) Store(e *Entry) {
	if e.Multiplicity == 0 {
		e.Multiplicity = 1
	}
	p.entries[e.ID] = e
	p.order = append(p.order, e.ID)
	p.changed = true
	p.logger.Debug("task stored", "task_id", e.ID, "task", e.Task.Name())
}

// Get returns the entry for id if it is idle in the pool (not dispatched,
// not removed).
func (p *Pool) Get(id model.TaskID) (*Entry, bool) {
	e, ok := p.entries[id]
	if !ok || e.taken || e.removed {
		return nil, false
	}
	return e, true
}

// Take removes a task for dispatch so it cannot be double-dispatched.
func (p *Pool) Take(id model.TaskID) (*Entry, bool) {
	e, ok := p.entries[id]
	if !ok || e.taken || e.removed {
		return nil, false
	}
	e.taken = true
	return e, true
}

// Release returns a dispatched task to the pool after completion. If the
// task was removed while dispatched, it is dropped instead. The entry is
// returned either way so the caller can release its locks.
func (p *Pool) Release(id model.TaskID) (*Entry, bool) {
	e, ok := p.entries[id]
	if !ok || !e.taken {
		return nil, false
	}
	e.taken = false
	if e.removed {
		p.drop(id)
	}
	return e, true
}

// Remove unschedules a task and marks the graph changed. A task currently
// dispatched is dropped when it completes.
func (p *Pool) Remove(id model.TaskID) error {
	e, ok := p.entries[id]
	if !ok || e.removed {
		return model.NewConfigError(model.ErrUnknownTask, "no task with id %s", id)
	}
	if e.taken {
		e.removed = true
	} else {
		p.drop(id)
	}
	p.changed = true
	p.logger.Debug("task removed", "task_id", id, "task", e.Task.Name())
	return nil
}

func (p *Pool) drop(id model.TaskID) {
	delete(p.entries, id)
	for i, other := range p.order {
		if other == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Changed reports whether the task graph changed since MarkClean.
func (p *Pool) Changed() bool { return p.changed }

// MarkClean clears the graph-changed flag after a rebuild.
func (p *Pool) MarkClean() { p.changed = false }

// Len returns the number of known tasks, including dispatched ones.
func (p *Pool) Len() int { return len(p.entries) }

// SelectForState returns, in insertion order, the ids of all tasks eligible
// in the given execution state: tasks with no state gate plus tasks gated on
// exactly that state.
func (p *Pool) SelectForState(state model.ContextType) []model.TaskID {
	var ids []model.TaskID
	for _, id := range p.order {
		e := p.entries[id]
		if e.removed {
			continue
		}
		states := e.Task.States()
		if len(states) == 0 {
			ids = append(ids, id)
			continue
		}
		for _, s := range states {
			if s == state {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// ResetTasks clears per-frame scheduling metadata on every task in the queue
// so dependency matching runs fresh.
func (p *Pool) ResetTasks(queue []model.TaskID) {
	for _, id := range queue {
		e, ok := p.entries[id]
		if !ok {
			continue
		}
		e.Scheduled = false
		e.Snapshot = nil
		e.Runs = 0
	}
}

// ProducesType reports whether any known task outputs t. Used to validate
// new tasks' requirements at registration time.
func (p *Pool) ProducesType(t model.ContextType) bool {
	for _, e := range p.entries {
		if e.removed {
			continue
		}
		if out := e.Task.Output(); out != nil && out == t {
			return true
		}
	}
	return false
}

// Recount walks the execution queue and computes, for every output type,
// how many task executions will provide it this frame. A task's expected
// executions (its multiplicity) is 1 unless it depends on an any-mode type
// with several providers, in which case it runs once per provider — and its
// own output count multiplies accordingly, recursively.
//
// Each queued entry's Multiplicity field is updated as a side effect. Tasks
// with an ambiguous multiplicity (two or more multi-provider any-mode
// dependencies) or caught in a provider cycle get Multiplicity 0 so they are
// never dispatched, and a ConfigError is accumulated for each.
func (p *Pool) Recount(queue []model.TaskID) (map[model.ContextType]int, error) {
	c := &counter{
		pool:     p,
		queue:    queue,
		counts:   make(map[model.ContextType]int),
		visiting: make(map[model.ContextType]bool),
	}

	var errs []error
	for _, id := range queue {
		e, ok := p.entries[id]
		if !ok || e.removed {
			continue
		}
		m, err := c.multiplicity(e)
		if err != nil {
			errs = append(errs, err)
			m = 0
		}
		e.Multiplicity = m
	}

	// Resolve counts for every output type present in the queue, so
	// all-mode checks have a count even when no one registered the type.
	for _, id := range queue {
		e, ok := p.entries[id]
		if !ok || e.removed {
			continue
		}
		if out := e.Task.Output(); out != nil {
			if _, err := c.providers(out); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return c.counts, errors.Join(errs...)
}

// counter memoizes provider counts during one Recount run.
type counter struct {
	pool     *Pool
	queue    []model.TaskID
	counts   map[model.ContextType]int
	resolved map[model.ContextType]bool
	visiting map[model.ContextType]bool
}

// providers returns how many executions will provide t this frame.
func (c *counter) providers(t model.ContextType) (int, error) {
	if c.resolved == nil {
		c.resolved = make(map[model.ContextType]bool)
	}
	if c.resolved[t] {
		return c.counts[t], nil
	}
	if c.visiting[t] {
		return 0, model.NewConfigError(model.ErrProviderCycle,
			"provider counting cycled through %s", t)
	}
	c.visiting[t] = true
	defer delete(c.visiting, t)

	total := 0
	for _, id := range c.queue {
		e, ok := c.pool.entries[id]
		if !ok || e.removed {
			continue
		}
		if out := e.Task.Output(); out == nil || out != t {
			continue
		}
		m, err := c.multiplicity(e)
		if err != nil {
			return 0, err
		}
		total += m
	}
	c.counts[t] = total
	c.resolved[t] = true
	return total, nil
}

// multiplicity returns how many times e is expected to run per frame.
func (c *counter) multiplicity(e *Entry) (int, error) {
	mult := 1
	fanned := false
	for _, req := range e.Task.Requirements() {
		if req.Mode != model.ModeAny {
			continue
		}
		n, err := c.providers(req.Type)
		if err != nil {
			return 0, err
		}
		if n <= 1 {
			continue
		}
		if fanned {
			return 0, model.NewConfigError(model.ErrAmbiguousFanOut,
				"task %s depends on more than one multi-provider any-mode type", e.Task.Name())
		}
		fanned = true
		mult = n
	}
	return mult, nil
}
