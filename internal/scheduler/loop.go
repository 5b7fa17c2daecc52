// Package scheduler drives frame-based task execution. A single goroutine
// owns the task pool, the execution queue, and the lock arbiter; it drains an
// inbound command channel, rebuilds the execution queue when the task graph
// changes, advances a frame only when all previously dispatched tasks have
// completed, and hands ready tasks to the worker pool.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/me/frameloop/internal/arbiter"
	"github.com/me/frameloop/internal/contextstore"
	"github.com/me/frameloop/internal/taskpool"
	"github.com/me/frameloop/internal/trace"
	"github.com/me/frameloop/internal/worker"
	"github.com/me/frameloop/pkg/model"
)

// tickType is the context token the host provides once per frame.
var tickType = model.TypeOf[model.Tick]()

// Stats is a point-in-time snapshot of loop state.
type Stats struct {
	Frame      uint64 `json:"frame"`
	Tasks      int    `json:"tasks"`
	QueueLen   int    `json:"queue_len"`
	Pending    int    `json:"pending"`
	Workers    int    `json:"workers"`
	Dispatches uint64 `json:"dispatches"`
}

// watch is one pending host subscription.
type watch struct {
	t  model.ContextType // nil matches any type
	ch chan<- any
}

// Loop is the scheduler control loop.
type Loop struct {
	store   *contextstore.Store
	pool    *taskpool.Pool
	arb     *arbiter.Arbiter
	workers *worker.Pool
	rec     trace.Recorder
	logger  *slog.Logger

	commands chan Command
	done     chan struct{}
	errs     chan error

	queue         []model.TaskID
	frame         uint64
	pending       int
	frameRequests int
	killing       bool
	killDone      chan<- struct{}
	watches       []watch
	dispatches    uint64
}

// New wires a loop from its collaborators. rec may be nil for no tracing.
func New(store *contextstore.Store, pool *taskpool.Pool, workers *worker.Pool, rec trace.Recorder, logger *slog.Logger) *Loop {
	if rec == nil {
		rec = trace.Nop{}
	}
	return &Loop{
		store:    store,
		pool:     pool,
		arb:      arbiter.New(),
		workers:  workers,
		rec:      rec,
		logger:   logger.With("component", "scheduler"),
		commands: make(chan Command, 256),
		done:     make(chan struct{}),
		errs:     make(chan error, 16),
	}
}

// Submit places a command on the inbound channel. It returns false if the
// loop has already shut down.
func (l *Loop) Submit(c Command) bool {
	select {
	case l.commands <- c:
		return true
	case <-l.done:
		return false
	}
}

// Errs delivers configuration errors detected at graph-build time. The
// channel is closed when the loop exits.
func (l *Loop) Errs() <-chan error {
	return l.errs
}

// Start launches the workers and the control goroutine. The Tick type is
// pre-registered with one expected provider (the host) per frame.
func (l *Loop) Start() {
	l.store.Register(tickType, 1)
	l.workers.Start(func(c worker.Completion) {
		l.commands <- completionCmd{c}
	})
	go l.run()
}

// run is the control loop: block for one command, drain the rest, then do
// frame/dispatch work. Commands have priority over dispatch so the queue is
// never dispatched against stale state.
func (l *Loop) run() {
	l.logger.Info("scheduler started", "workers", l.workers.Size())
	for {
		l.process(<-l.commands)
	drain:
		for {
			select {
			case c := <-l.commands:
				l.process(c)
			default:
				break drain
			}
		}

		if l.killing {
			if l.pending > 0 {
				continue // wait for in-flight completions
			}
			l.teardown()
			return
		}

		l.dispatch()

		// Drain every deferred frame request the engine is idle for. A
		// boundary whose dispatch pass starts no work (tasks waiting on a
		// host value) must not strand the next queued request until an
		// unrelated command wakes the loop.
		for l.frameRequests > 0 && l.pending == 0 {
			l.frameRequests--
			l.frameBoundary()
			l.dispatch()
		}
	}
}

// process handles a single command.
func (l *Loop) process(c Command) {
	switch cmd := c.(type) {
	case ScheduleCmd:
		cmd.Reply <- l.schedule(cmd.ID, cmd.Task)
	case UnscheduleCmd:
		cmd.Reply <- l.pool.Remove(cmd.ID)
	case StoreCmd:
		l.store.StoreValue(cmd.Type, cmd.Value)
		l.notify(cmd.Type, cmd.Value)
	case DiscardCmd:
		l.store.Discard(cmd.Type)
	case RegisterCmd:
		if cmd.State != nil {
			l.store.RegisterWithState(cmd.Type, cmd.Expected, cmd.State)
		} else {
			l.store.Register(cmd.Type, cmd.Expected)
		}
	case ProvideCmd:
		l.store.Provide(cmd.Type, cmd.Value)
		l.notify(cmd.Type, cmd.Value)
	case TickCmd:
		// Advance immediately when all prior work is done so that host
		// commands queued behind the tick land in the new frame; otherwise
		// defer until the last completion arrives.
		if l.pending == 0 && !l.killing {
			l.frameBoundary()
		} else {
			l.frameRequests++
		}
	case SetStateCmd:
		l.store.RequestState(cmd.State)
	case WatchCmd:
		l.watches = append(l.watches, watch{t: cmd.Type, ch: cmd.Reply})
	case StatsCmd:
		cmd.Reply <- Stats{
			Frame:      l.frame,
			Tasks:      l.pool.Len(),
			QueueLen:   len(l.queue),
			Pending:    l.pending,
			Workers:    l.workers.Size(),
			Dispatches: l.dispatches,
		}
	case KillCmd:
		l.killing = true
		l.killDone = cmd.Done
	case completionCmd:
		l.complete(cmd.c)
	}
}

// schedule validates a task's requirements and stores it in the pool. Every
// required type must already be registered, stored, or produced by a known
// task — unknown requirements are a configuration error, surfaced here
// rather than at consumption time.
func (l *Loop) schedule(id model.TaskID, t model.Task) error {
	for _, req := range t.Requirements() {
		if req.Type == tickType || l.store.Known(req.Type) || l.pool.ProducesType(req.Type) {
			continue
		}
		if out := t.Output(); out != nil && out == req.Type {
			continue
		}
		return model.NewConfigError(model.ErrUnregisteredDependency,
			"task %s requires unregistered type %s", t.Name(), req.Type)
	}
	l.pool.Store(&taskpool.Entry{ID: id, Task: t})
	l.logger.Debug("task scheduled", "task_id", id, "task", t.Name())
	return nil
}

// complete handles a worker report: release the task's locks, return it to
// the pool, and route its output into the context store.
func (l *Loop) complete(c worker.Completion) {
	l.pending--
	e, ok := l.pool.Release(c.ID)
	if !ok {
		l.logger.Error("completion for unknown task", "task_id", c.ID)
		return
	}
	l.arb.Unlock(e.Task.Locks())
	e.LastDuration = c.Duration

	if c.Err != nil {
		l.publishErr(c.Err)
		l.record(trace.Event{
			Frame: l.frame, Kind: trace.KindFail,
			TaskID: string(c.ID), TaskName: e.Task.Name(), Duration: c.Duration,
		})
		return
	}

	out := e.Task.Output()
	if out != nil {
		l.store.Provide(out, c.Output)
		l.notify(out, c.Output)
	}
	l.record(trace.Event{
		Frame: l.frame, Kind: trace.KindComplete,
		TaskID: string(c.ID), TaskName: e.Task.Name(),
		OutputType: typeName(out), Duration: c.Duration,
	})
}

// frameBoundary starts the next frame: per-frame counters are reset, pending
// state transitions commit, and the execution queue is rebuilt if the task
// graph or the active state changed since the last build.
func (l *Loop) frameBoundary() {
	l.store.ResetData()
	stateChanged := l.store.ApplyStateChanges()

	if l.pool.Changed() || stateChanged || l.queue == nil {
		l.queue = l.pool.SelectForState(l.store.ActiveState())
		counts, err := l.pool.Recount(l.queue)
		if err != nil {
			l.publishErr(err)
		}
		counts[tickType] = 1
		l.store.SetExpected(counts)
		l.pool.MarkClean()
		l.logger.Debug("queue rebuilt", "len", len(l.queue), "state_changed", stateChanged)
	}
	l.pool.ResetTasks(l.queue)

	l.frame++
	tick := model.Tick{Frame: l.frame}
	l.store.Provide(tickType, tick)
	l.notify(tickType, tick)
	l.record(trace.Event{Frame: l.frame, Kind: trace.KindFrame})
	l.logger.Debug("frame started", "frame", l.frame)
}

// dispatch makes one pass over the execution queue. Tasks whose dependencies
// match get a frozen snapshot; tasks holding a snapshot try their locks. A
// dispatched task rotates to the back of the queue so contested peers are
// retried first; a lock failure leaves the task in place with its snapshot
// intact.
func (l *Loop) dispatch() {
	for i := 0; i < len(l.queue); i++ {
		id := l.queue[i]
		e, ok := l.pool.Get(id)
		if !ok {
			continue // dispatched or removed
		}
		if e.Runs >= e.Multiplicity {
			continue
		}
		if !e.Scheduled {
			snap, ok := l.store.Match(e.Task.Requirements(), e.Runs)
			if !ok {
				continue
			}
			e.Scheduled = true
			e.Snapshot = snap
		}
		locks := e.Task.Locks()
		if !l.arb.Lock(locks) {
			continue
		}
		if !l.workers.TryDispatch(worker.Assignment{ID: id, Task: e.Task, Snapshot: e.Snapshot}) {
			l.arb.Unlock(locks)
			continue
		}

		l.pool.Take(id)
		e.Scheduled = false
		e.Snapshot = nil
		e.Runs++
		e.Dispatches++
		l.pending++
		l.dispatches++

		// Rotate to the back of the queue.
		l.queue = append(append(l.queue[:i], l.queue[i+1:]...), id)
		i--

		l.record(trace.Event{
			Frame: l.frame, Kind: trace.KindDispatch,
			TaskID: string(id), TaskName: e.Task.Name(),
		})
		l.logger.Debug("task dispatched", "task_id", id, "task", e.Task.Name(), "run", e.Runs)
	}
}

// teardown stops the workers and closes the loop's outbound channels. All
// in-flight completions have been received by the time this runs, so no
// worker can be blocked reporting.
func (l *Loop) teardown() {
	l.workers.Stop()
	close(l.done)
	close(l.errs)
	for _, w := range l.watches {
		close(w.ch)
	}
	if l.killDone != nil {
		l.killDone <- struct{}{}
	}
	l.logger.Info("scheduler stopped", "frames", l.frame)
}

// notify delivers a value to pending host watches. Each watch fires once.
func (l *Loop) notify(t model.ContextType, v any) {
	kept := l.watches[:0]
	for _, w := range l.watches {
		if w.t == nil || w.t == t {
			w.ch <- v
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	l.watches = kept
}

// publishErr surfaces a graph-build or execution error to the host without
// blocking the loop.
func (l *Loop) publishErr(err error) {
	select {
	case l.errs <- err:
	default:
		l.logger.Error("error channel full, dropping", "error", err)
	}
}

func (l *Loop) record(e trace.Event) {
	if err := l.rec.Record(context.Background(), e); err != nil {
		l.logger.Error("trace record", "error", err)
	}
}

func typeName(t model.ContextType) string {
	if t == nil {
		return ""
	}
	return t.String()
}
