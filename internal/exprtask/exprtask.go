// Package exprtask implements tasks whose body is a JavaScript expression
// evaluated with goja. Snapshot values are bound as inputs.<name>; the
// expression's result becomes the task output. This is how data-defined
// graphs (YAML files) get runnable task bodies without Go code.
package exprtask

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/me/frameloop/pkg/model"
)

// Input binds one declared dependency to a name visible to the expression.
type Input struct {
	Name string
	Dep  model.Dependency
}

// Def describes an expression task.
type Def struct {
	Name   string
	Expr   string
	Inputs []Input
	Output model.ContextType // nil means the task produces nothing
	Locks  []model.Resource
	Gates  []model.ContextType
}

// Task is a model.Task evaluating a compiled JavaScript expression.
type Task struct {
	def  Def
	prog *goja.Program
	reqs []model.Dependency
}

// New compiles the expression and returns the task. Compilation errors are
// reported here, not at run time.
func New(def Def) (*Task, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("expression task needs a name")
	}
	prog, err := goja.Compile(def.Name, def.Expr, false)
	if err != nil {
		return nil, fmt.Errorf("compile expression for %s: %w", def.Name, err)
	}

	reqs := make([]model.Dependency, len(def.Inputs))
	for i, in := range def.Inputs {
		reqs[i] = in.Dep
	}

	return &Task{def: def, prog: prog, reqs: reqs}, nil
}

func (t *Task) Name() string                     { return t.def.Name }
func (t *Task) Requirements() []model.Dependency { return t.reqs }
func (t *Task) Output() model.ContextType        { return t.def.Output }
func (t *Task) Locks() []model.Resource          { return t.def.Locks }
func (t *Task) States() []model.ContextType      { return t.def.Gates }

// Run evaluates the expression against the snapshot. A fresh VM is built per
// run: goja runtimes are not goroutine-safe and tasks run on worker threads.
func (t *Task) Run(snap *model.Snapshot) (any, error) {
	vm := goja.New()

	inputs := make(map[string]any, len(t.def.Inputs))
	for _, in := range t.def.Inputs {
		v, ok := snap.Value(in.Dep.Type)
		if !ok {
			return nil, fmt.Errorf("task %s: snapshot missing input %s", t.def.Name, in.Name)
		}
		inputs[in.Name] = v
	}
	if err := vm.Set("inputs", inputs); err != nil {
		return nil, fmt.Errorf("set inputs: %w", err)
	}

	result, err := vm.RunProgram(t.prog)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.def.Name, err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	return result.Export(), nil
}
