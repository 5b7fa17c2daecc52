package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/frameloop/internal/contextstore"
	"github.com/me/frameloop/internal/taskpool"
	"github.com/me/frameloop/internal/worker"
	"github.com/me/frameloop/pkg/model"
)

type heartbeat struct{ frame uint64 }

// newTestLoop builds and starts a loop with 2 workers and no tracing.
func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := contextstore.New(logger)
	pool := taskpool.New(logger)
	workers := worker.NewPool(2, logger)

	l := New(store, pool, workers, nil, logger)
	l.Start()
	t.Cleanup(func() {
		done := make(chan struct{}, 1)
		if l.Submit(KillCmd{Done: done}) {
			<-done
		}
	})
	return l
}

func addTask(t *testing.T, l *Loop, task model.Task) model.TaskID {
	t.Helper()
	id := model.NewTaskID()
	reply := make(chan error, 1)
	l.Submit(ScheduleCmd{ID: id, Task: task, Reply: reply})
	if err := <-reply; err != nil {
		t.Fatalf("schedule %s: %v", task.Name(), err)
	}
	return id
}

func watchType(t *testing.T, l *Loop, typ model.ContextType) <-chan any {
	t.Helper()
	reply := make(chan any, 1)
	l.Submit(WatchCmd{Type: typ, Reply: reply})
	return reply
}

func recv(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed without a value")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a watched value")
		return nil
	}
}

func TestSchedule_UnregisteredDependencyRejected(t *testing.T) {
	l := newTestLoop(t)

	id := model.NewTaskID()
	reply := make(chan error, 1)
	l.Submit(ScheduleCmd{
		ID: id,
		Task: &model.FuncTask{
			TaskName: "orphan",
			Deps:     []model.Dependency{model.AnyOf[heartbeat]()},
		},
		Reply: reply,
	})

	err := <-reply
	var cfg *model.ConfigError
	if !errors.As(err, &cfg) || cfg.Code != model.ErrUnregisteredDependency {
		t.Errorf("schedule = %v, want ErrUnregisteredDependency", err)
	}
}

func TestSchedule_TickDependencyAllowed(t *testing.T) {
	l := newTestLoop(t)

	addTask(t, l, &model.FuncTask{
		TaskName: "per-frame",
		Deps:     []model.Dependency{model.AnyOf[model.Tick]()},
		Out:      model.TypeOf[heartbeat](),
		Fn: func(snap *model.Snapshot) (any, error) {
			tick, err := model.FetchAs[model.Tick](snap)
			if err != nil {
				return nil, err
			}
			return heartbeat{frame: tick.Frame}, nil
		},
	})

	// Two frames; the task must run exactly once per frame and see the
	// frame counter through its snapshot.
	for want := uint64(1); want <= 2; want++ {
		ch := watchType(t, l, model.TypeOf[heartbeat]())
		l.Submit(TickCmd{})
		hb := recv(t, ch).(heartbeat)
		if hb.frame != want {
			t.Errorf("heartbeat frame = %d, want %d", hb.frame, want)
		}
	}
}

func TestStats(t *testing.T) {
	l := newTestLoop(t)

	addTask(t, l, &model.FuncTask{
		TaskName: "producer",
		Out:      model.TypeOf[heartbeat](),
		Fn:       func(*model.Snapshot) (any, error) { return heartbeat{}, nil },
	})

	ch := watchType(t, l, model.TypeOf[heartbeat]())
	l.Submit(TickCmd{})
	recv(t, ch)

	reply := make(chan Stats, 1)
	l.Submit(StatsCmd{Reply: reply})
	stats := <-reply

	if stats.Frame != 1 {
		t.Errorf("Frame = %d, want 1", stats.Frame)
	}
	if stats.Tasks != 1 {
		t.Errorf("Tasks = %d, want 1", stats.Tasks)
	}
	if stats.Dispatches != 1 {
		t.Errorf("Dispatches = %d, want 1", stats.Dispatches)
	}
	if stats.Workers != 2 {
		t.Errorf("Workers = %d, want 2", stats.Workers)
	}
}

func TestKill_ClosesErrsAndRefusesSubmit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(contextstore.New(logger), taskpool.New(logger), worker.NewPool(1, logger), nil, logger)
	l.Start()

	done := make(chan struct{}, 1)
	if !l.Submit(KillCmd{Done: done}) {
		t.Fatal("kill submit failed")
	}
	<-done

	if _, ok := <-l.Errs(); ok {
		t.Error("errs channel should be closed after kill")
	}
	if l.Submit(TickCmd{}) {
		t.Error("submit after kill should be refused")
	}
}

// Frame starts are observable through the watch API like any other provide.
func TestWatch_Tick(t *testing.T) {
	l := newTestLoop(t)

	ch := watchType(t, l, model.TypeOf[model.Tick]())
	l.Submit(TickCmd{})

	tick := recv(t, ch).(model.Tick)
	if tick.Frame != 1 {
		t.Errorf("tick frame = %d, want 1", tick.Frame)
	}
}

func TestWatch_HostProvide(t *testing.T) {
	l := newTestLoop(t)

	typ := model.Named("player-input")
	l.Submit(RegisterCmd{Type: typ, Expected: 1})

	ch := watchType(t, l, typ)
	l.Submit(TickCmd{})
	l.Submit(ProvideCmd{Type: typ, Value: "jump"})

	if v := recv(t, ch); v != "jump" {
		t.Errorf("watched value = %v, want jump", v)
	}
}
