// Package sched is the public surface of the frameloop engine. A Manager
// owns one scheduler goroutine and a fixed worker pool for the lifetime of
// the process; the host registers tasks and context types, seeds values, and
// drives frames with Run.
package sched

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/me/frameloop/internal/contextstore"
	"github.com/me/frameloop/internal/scheduler"
	"github.com/me/frameloop/internal/taskpool"
	"github.com/me/frameloop/internal/trace"
	"github.com/me/frameloop/internal/worker"
	"github.com/me/frameloop/pkg/model"
)

// Stats is a point-in-time snapshot of engine state.
type Stats = scheduler.Stats

// Config holds engine configuration.
type Config struct {
	// Workers is the worker pool size. Defaults to 4.
	Workers int

	// TraceDB, when set, enables SQLite trace recording at this path
	// (":memory:" works for tests).
	TraceDB string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Manager is the task-manager façade over the scheduler loop.
type Manager struct {
	loop   *scheduler.Loop
	store  *contextstore.Store
	rec    trace.Recorder
	logger *slog.Logger
	closed atomic.Bool
}

// New builds and starts an engine: context store, task pool, worker pool,
// and the scheduler goroutine.
func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	var rec trace.Recorder = trace.Nop{}
	if cfg.TraceDB != "" {
		r, err := trace.NewSQLiteRecorder(cfg.TraceDB, logger)
		if err != nil {
			return nil, err
		}
		if err := r.Migrate(context.Background()); err != nil {
			r.Close()
			return nil, err
		}
		rec = r
	}

	store := contextstore.New(logger)
	pool := taskpool.New(logger)
	workers := worker.NewPool(cfg.Workers, logger)
	loop := scheduler.New(store, pool, workers, rec, logger)
	loop.Start()

	return &Manager{
		loop:   loop,
		store:  store,
		rec:    rec,
		logger: logger.With("component", "manager"),
	}, nil
}

// AddTask registers a task and returns its identity. Every required context
// type must already be registered, stored, or produced by a known task;
// violations return a typed ConfigError.
func (m *Manager) AddTask(t model.Task) (model.TaskID, error) {
	if m.closed.Load() {
		return "", errShuttingDown()
	}
	id := model.NewTaskID()
	reply := make(chan error, 1)
	if !m.loop.Submit(scheduler.ScheduleCmd{ID: id, Task: t, Reply: reply}) {
		return "", errShuttingDown()
	}
	if err := <-reply; err != nil {
		return "", err
	}
	return id, nil
}

// RemoveTask unschedules a task. A task currently running finishes its
// dispatch and is then dropped.
func (m *Manager) RemoveTask(id model.TaskID) error {
	if m.closed.Load() {
		return errShuttingDown()
	}
	reply := make(chan error, 1)
	if !m.loop.Submit(scheduler.UnscheduleCmd{ID: id, Reply: reply}) {
		return errShuttingDown()
	}
	return <-reply
}

// RegisterType declares that expected providers will produce values of t per
// frame. state, when non-nil, tags t so that providing a value of t requests
// that execution state at the next frame boundary.
func (m *Manager) RegisterType(t model.ContextType, expected int, state model.ContextType) {
	m.submit(scheduler.RegisterCmd{Type: t, Expected: expected, State: state})
}

// ProvideValue records a host-produced value of t for the current frame.
func (m *Manager) ProvideValue(t model.ContextType, v any) {
	m.submit(scheduler.ProvideCmd{Type: t, Value: v})
}

// StoreValueFor sets a long-lived singleton value for t.
func (m *Manager) StoreValueFor(t model.ContextType, v any) {
	m.submit(scheduler.StoreCmd{Type: t, Value: v})
}

// DiscardType clears any value held for t.
func (m *Manager) DiscardType(t model.ContextType) {
	m.submit(scheduler.DiscardCmd{Type: t})
}

// SetStateType queues an execution-state transition, committed at the next
// frame boundary so a change never invalidates mid-frame resolution.
func (m *Manager) SetStateType(state model.ContextType) {
	m.submit(scheduler.SetStateCmd{State: state})
}

// Run advances the engine by one frame. It maps to providing a model.Tick:
// the frame actually starts once all tasks dispatched in the previous frame
// have completed.
func (m *Manager) Run() {
	m.submit(scheduler.TickCmd{})
}

// WatchType subscribes to the next value of t without blocking. The channel
// receives exactly one value and is then closed; it is closed without a
// value if the engine shuts down first.
func (m *Manager) WatchType(t model.ContextType) (<-chan any, error) {
	if m.closed.Load() {
		return nil, errShuttingDown()
	}
	reply := make(chan any, 1)
	if !m.loop.Submit(scheduler.WatchCmd{Type: t, Reply: reply}) {
		return nil, errShuttingDown()
	}
	return reply, nil
}

// WaitForType blocks until the next value of t is provided (by a task or the
// host) and returns it.
func (m *Manager) WaitForType(t model.ContextType) (any, error) {
	ch, err := m.WatchType(t)
	if err != nil {
		return nil, err
	}
	v, ok := <-ch
	if !ok {
		return nil, errShuttingDown()
	}
	return v, nil
}

// WaitMessage blocks until the next value of any type is provided and
// returns it.
func (m *Manager) WaitMessage() (any, error) {
	return m.WaitForType(nil)
}

// TryGet returns the current value for t without blocking. Scheduling never
// depends on this; it exists for host-side peeking.
func (m *Manager) TryGet(t model.ContextType) (any, bool) {
	return m.store.Get(t)
}

// Errs delivers configuration errors detected at graph-build time (ambiguous
// fan-out, provider cycles) and task execution failures.
func (m *Manager) Errs() <-chan error {
	return m.loop.Errs()
}

// Stats returns a consistent snapshot of engine statistics.
func (m *Manager) Stats() Stats {
	reply := make(chan Stats, 1)
	if !m.loop.Submit(scheduler.StatsCmd{Reply: reply}) {
		return Stats{}
	}
	return <-reply
}

// Shutdown tears the engine down: in-flight tasks finish, workers join, and
// the trace recorder is closed. Idempotent.
func (m *Manager) Shutdown() {
	if m.closed.Swap(true) {
		return
	}
	done := make(chan struct{}, 1)
	if m.loop.Submit(scheduler.KillCmd{Done: done}) {
		<-done
	}
	if err := m.rec.Close(); err != nil {
		m.logger.Error("close trace recorder", "error", err)
	}
}

func (m *Manager) submit(c scheduler.Command) {
	if m.closed.Load() {
		return
	}
	m.loop.Submit(c)
}

func errShuttingDown() error {
	return model.NewConfigError(model.ErrShuttingDown, "manager is shut down")
}
