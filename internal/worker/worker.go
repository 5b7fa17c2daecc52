// Package worker runs tasks on a fixed pool of goroutines. Workers are
// stateless executors: each receives an assignment, invokes the task against
// its frozen dependency snapshot, and reports a completion back to the
// scheduler.
package worker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/frameloop/pkg/model"
)

// Assignment is one dispatched task run.
type Assignment struct {
	ID       model.TaskID
	Task     model.Task
	Snapshot *model.Snapshot
}

// Completion reports the outcome of one task run.
type Completion struct {
	ID       model.TaskID
	Output   any
	Err      error
	Duration time.Duration
}

// Pool is a fixed-size worker pool fed by a shared dispatch channel.
type Pool struct {
	size     int
	dispatch chan Assignment
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewPool creates a pool of size workers. The dispatch channel is buffered
// to size so the scheduler can hand out one assignment per worker without
// blocking; beyond that, TryDispatch reports backpressure and the scheduler
// retries on its next pass.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:     size,
		dispatch: make(chan Assignment, size),
		logger:   logger.With("component", "worker"),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the worker goroutines. Every completion — success, task
// error, or recovered panic — is passed to report.
func (p *Pool) Start(report func(Completion)) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(i, report)
	}
	p.logger.Info("workers started", "count", p.size)
}

// TryDispatch hands an assignment to the pool without blocking. It returns
// false when every worker is busy and the buffer is full; the caller keeps
// the task scheduled and retries later.
func (p *Pool) TryDispatch(a Assignment) bool {
	select {
	case p.dispatch <- a:
		return true
	default:
		return false
	}
}

// Stop closes the dispatch channel and waits for all workers to exit. The
// caller must have received every outstanding completion first, otherwise a
// worker may still be blocked reporting.
func (p *Pool) Stop() {
	close(p.dispatch)
	p.wg.Wait()
	p.logger.Info("workers stopped")
}

// run is one worker's loop: receive, execute, report, until the dispatch
// channel is closed.
func (p *Pool) run(id int, report func(Completion)) {
	defer p.wg.Done()
	logger := p.logger.With("worker", id)

	for a := range p.dispatch {
		start := time.Now()
		out, err := execute(a)
		d := time.Since(start)

		if err != nil {
			logger.Error("task failed", "task_id", a.ID, "task", a.Task.Name(), "error", err)
		} else {
			logger.Debug("task completed", "task_id", a.ID, "task", a.Task.Name(), "duration", d)
		}

		report(Completion{ID: a.ID, Output: out, Err: err, Duration: d})
	}
}

// execute runs the task body, converting a panic into an error so one bad
// task cannot take down the pool or stall frame advancement.
func execute(a Assignment) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("task %s panicked: %v", a.Task.Name(), r)
		}
	}()
	return a.Task.Run(a.Snapshot)
}
