package taskpool

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/me/frameloop/pkg/model"
)

type inputEvents struct{}
type chunk struct{}
type mesh struct{}
type editorState struct{}

func newPool(t *testing.T) *Pool {
	t.Helper()
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// makeTask builds a pool entry around a FuncTask with the given shape.
func makeTask(name string, deps []model.Dependency, out model.ContextType, gates ...model.ContextType) *Entry {
	return &Entry{
		ID: model.NewTaskID(),
		Task: &model.FuncTask{
			TaskName: name,
			Deps:     deps,
			Out:      out,
			Gates:    gates,
		},
	}
}

func TestStore_MarksGraphChanged(t *testing.T) {
	p := newPool(t)
	if p.Changed() {
		t.Fatal("fresh pool should be clean")
	}

	e := makeTask("producer", nil, model.TypeOf[chunk]())
	p.Store(e)
	if !p.Changed() {
		t.Error("Store of a new task should mark the graph changed")
	}

	p.MarkClean()
	if p.Changed() {
		t.Error("MarkClean did not clear the flag")
	}
}

func TestTake_PreventsDoubleDispatch(t *testing.T) {
	p := newPool(t)
	e := makeTask("producer", nil, model.TypeOf[chunk]())
	p.Store(e)
	p.MarkClean()

	if _, ok := p.Take(e.ID); !ok {
		t.Fatal("first Take should succeed")
	}
	if _, ok := p.Take(e.ID); ok {
		t.Fatal("second Take of a dispatched task must fail")
	}
	if _, ok := p.Get(e.ID); ok {
		t.Fatal("Get must not return a dispatched task")
	}

	if _, ok := p.Release(e.ID); !ok {
		t.Fatal("Release should succeed")
	}
	if _, ok := p.Take(e.ID); !ok {
		t.Error("Take after Release should succeed")
	}
	// Returning a task does not dirty the graph.
	if p.Changed() {
		t.Error("Take/Release cycle marked the graph changed")
	}
}

func TestRemove_WhileDispatched(t *testing.T) {
	p := newPool(t)
	e := makeTask("producer", nil, model.TypeOf[chunk]())
	p.Store(e)
	p.MarkClean()

	p.Take(e.ID)
	if err := p.Remove(e.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !p.Changed() {
		t.Error("Remove should mark the graph changed")
	}

	// The entry is dropped once the dispatch completes.
	if _, ok := p.Release(e.ID); !ok {
		t.Fatal("Release of a removed-while-taken task should still return the entry")
	}
	if p.Len() != 0 {
		t.Errorf("Len = %d after release of removed task, want 0", p.Len())
	}
}

func TestRemove_Unknown(t *testing.T) {
	p := newPool(t)
	err := p.Remove(model.TaskID("task_nope"))
	var cfg *model.ConfigError
	if !errors.As(err, &cfg) || cfg.Code != model.ErrUnknownTask {
		t.Errorf("Remove unknown = %v, want ErrUnknownTask", err)
	}
}

func TestSelectForState(t *testing.T) {
	p := newPool(t)
	editor := model.TypeOf[editorState]()

	always := makeTask("always", nil, model.TypeOf[chunk]())
	gated := makeTask("editor-only", nil, model.TypeOf[mesh](), editor)
	p.Store(always)
	p.Store(gated)

	def := p.SelectForState(nil)
	if len(def) != 1 || def[0] != always.ID {
		t.Errorf("default state queue = %v, want [%v]", def, always.ID)
	}

	ed := p.SelectForState(editor)
	if len(ed) != 2 {
		t.Fatalf("editor state queue len = %d, want 2", len(ed))
	}
	if ed[0] != always.ID || ed[1] != gated.ID {
		t.Errorf("editor state queue = %v, want insertion order [always gated]", ed)
	}
}

func TestResetTasks(t *testing.T) {
	p := newPool(t)
	e := makeTask("producer", nil, model.TypeOf[chunk]())
	p.Store(e)
	e.Scheduled = true
	e.Runs = 3
	e.Snapshot = model.NewSnapshot(nil)

	p.ResetTasks([]model.TaskID{e.ID})

	if e.Scheduled || e.Runs != 0 || e.Snapshot != nil {
		t.Errorf("entry not reset: %+v", e)
	}
}

func TestRecount_SimpleCounts(t *testing.T) {
	p := newPool(t)
	chunkT := model.TypeOf[chunk]()
	meshT := model.TypeOf[mesh]()

	a := makeTask("gen-a", nil, chunkT)
	b := makeTask("gen-b", nil, chunkT)
	c := makeTask("mesher", []model.Dependency{{Type: chunkT, Mode: model.ModeAll}}, meshT)
	for _, e := range []*Entry{a, b, c} {
		p.Store(e)
	}

	queue := []model.TaskID{a.ID, b.ID, c.ID}
	counts, err := p.Recount(queue)
	if err != nil {
		t.Fatalf("Recount: %v", err)
	}
	if counts[chunkT] != 2 {
		t.Errorf("counts[chunk] = %d, want 2", counts[chunkT])
	}
	if counts[meshT] != 1 {
		t.Errorf("counts[mesh] = %d, want 1", counts[meshT])
	}
	if c.Multiplicity != 1 {
		t.Errorf("all-mode consumer multiplicity = %d, want 1", c.Multiplicity)
	}
}

// Any-mode fan-out: a consumer of a 2-provider type runs twice, and its own
// output count multiplies downstream.
func TestRecount_AnyFanOut(t *testing.T) {
	p := newPool(t)
	chunkT := model.TypeOf[chunk]()
	meshT := model.TypeOf[mesh]()

	a := makeTask("gen-a", nil, chunkT)
	b := makeTask("gen-b", nil, chunkT)
	c := makeTask("mesher", []model.Dependency{{Type: chunkT, Mode: model.ModeAny}}, meshT)
	d := makeTask("collector", []model.Dependency{{Type: meshT, Mode: model.ModeAll}}, nil)
	for _, e := range []*Entry{a, b, c, d} {
		p.Store(e)
	}

	counts, err := p.Recount([]model.TaskID{a.ID, b.ID, c.ID, d.ID})
	if err != nil {
		t.Fatalf("Recount: %v", err)
	}
	if c.Multiplicity != 2 {
		t.Errorf("fan-out consumer multiplicity = %d, want 2", c.Multiplicity)
	}
	if counts[meshT] != 2 {
		t.Errorf("counts[mesh] = %d, want 2 (fan-out multiplied)", counts[meshT])
	}
}

func TestRecount_AmbiguousFanOut(t *testing.T) {
	p := newPool(t)
	chunkT := model.TypeOf[chunk]()
	inputT := model.TypeOf[inputEvents]()

	for _, out := range []model.ContextType{chunkT, chunkT, inputT, inputT} {
		p.Store(makeTask("provider", nil, out))
	}
	bad := makeTask("ambiguous", []model.Dependency{
		{Type: chunkT, Mode: model.ModeAny},
		{Type: inputT, Mode: model.ModeAny},
	}, model.TypeOf[mesh]())
	p.Store(bad)

	queue := p.SelectForState(nil)
	_, err := p.Recount(queue)

	var cfg *model.ConfigError
	if !errors.As(err, &cfg) || cfg.Code != model.ErrAmbiguousFanOut {
		t.Fatalf("Recount = %v, want ErrAmbiguousFanOut", err)
	}
	if bad.Multiplicity != 0 {
		t.Errorf("ambiguous task multiplicity = %d, want 0 (never dispatched)", bad.Multiplicity)
	}
}

func TestRecount_ProviderCycle(t *testing.T) {
	p := newPool(t)
	chunkT := model.TypeOf[chunk]()
	meshT := model.TypeOf[mesh]()

	a := makeTask("a", []model.Dependency{{Type: meshT, Mode: model.ModeAny}}, chunkT)
	b := makeTask("b", []model.Dependency{{Type: chunkT, Mode: model.ModeAny}}, meshT)
	p.Store(a)
	p.Store(b)

	_, err := p.Recount([]model.TaskID{a.ID, b.ID})
	var cfg *model.ConfigError
	if !errors.As(err, &cfg) || cfg.Code != model.ErrProviderCycle {
		t.Fatalf("Recount = %v, want ErrProviderCycle", err)
	}
}

// Removing a task before its dependencies are ever satisfied must not leave
// it in provider counts.
func TestRecount_AfterRemove(t *testing.T) {
	p := newPool(t)
	chunkT := model.TypeOf[chunk]()

	a := makeTask("gen-a", nil, chunkT)
	b := makeTask("gen-b", nil, chunkT)
	p.Store(a)
	p.Store(b)
	if err := p.Remove(b.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	queue := p.SelectForState(nil)
	counts, err := p.Recount(queue)
	if err != nil {
		t.Fatalf("Recount: %v", err)
	}
	if counts[chunkT] != 1 {
		t.Errorf("counts[chunk] = %d after removal, want 1", counts[chunkT])
	}
}
