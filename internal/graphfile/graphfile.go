// Package graphfile loads task-graph definitions from YAML and installs them
// into a running engine. Channels are named context tokens; task bodies are
// JavaScript expressions (see internal/exprtask).
package graphfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/frameloop/internal/exprtask"
	"github.com/me/frameloop/pkg/model"
	"github.com/me/frameloop/pkg/sched"
)

// File is one parsed graph definition.
type File struct {
	// Register declares channels the host provides each frame, so consumer
	// tasks pass dependency validation before any value exists.
	Register []RegisterDef `yaml:"register"`

	Tasks []TaskDef `yaml:"tasks"`

	// Provide lists host values injected every frame.
	Provide []ProvideDef `yaml:"provide"`

	// Watch names the channel whose per-frame value the caller wants back.
	Watch string `yaml:"watch"`

	// State names the execution state to activate before the first frame.
	State string `yaml:"state"`
}

// RegisterDef declares a host-provided channel.
type RegisterDef struct {
	Name     string `yaml:"name"`
	Expected int    `yaml:"expected"`
	State    string `yaml:"state"` // optional: providing this channel requests this state
}

// ProvideDef is a host value injected every frame.
type ProvideDef struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// TaskDef declares one expression task.
type TaskDef struct {
	Name   string     `yaml:"name"`
	Expr   string     `yaml:"expr"`
	Inputs []InputDef `yaml:"inputs"`
	Output string     `yaml:"output"`
	Locks  []LockDef  `yaml:"locks"`
	States []string   `yaml:"states"`
}

// InputDef binds a channel to an expression input name.
type InputDef struct {
	Name string `yaml:"name"`
	From string `yaml:"from"`
	Mode string `yaml:"mode"` // any (default) | all
}

// LockDef declares a resource lock.
type LockDef struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"` // exclusive (default) | shared
}

// Load reads and parses a graph file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse graph %s: %w", path, err)
	}
	for i, t := range f.Tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("graph %s: tasks[%d] has no name", path, i)
		}
		if t.Expr == "" {
			return nil, fmt.Errorf("graph %s: task %s has no expr", path, t.Name)
		}
	}
	return &f, nil
}

// Install registers channels and tasks into the engine. Tasks are added in
// file order; a task may depend on channels produced by any task in the
// file, so producer tasks are installed before consumers by a two-pass walk
// (outputs are pre-registered with expected 0 and corrected by the engine's
// queue rebuild).
func Install(m *sched.Manager, f *File) ([]model.TaskID, error) {
	for _, r := range f.Register {
		var state model.ContextType
		if r.State != "" {
			state = model.Named(r.State)
		}
		expected := r.Expected
		if expected <= 0 {
			expected = 1
		}
		m.RegisterType(model.Named(r.Name), expected, state)
	}

	// Pre-register task outputs so dependency validation is order-free.
	for _, t := range f.Tasks {
		if t.Output != "" {
			m.RegisterType(model.Named(t.Output), 0, nil)
		}
	}

	var ids []model.TaskID
	for _, t := range f.Tasks {
		task, err := buildTask(t)
		if err != nil {
			return ids, err
		}
		id, err := m.AddTask(task)
		if err != nil {
			return ids, fmt.Errorf("add task %s: %w", t.Name, err)
		}
		ids = append(ids, id)
	}

	if f.State != "" {
		m.SetStateType(model.Named(f.State))
	}
	return ids, nil
}

func buildTask(t TaskDef) (*exprtask.Task, error) {
	def := exprtask.Def{Name: t.Name, Expr: t.Expr}

	for _, in := range t.Inputs {
		mode, err := parseMode(in.Mode)
		if err != nil {
			return nil, fmt.Errorf("task %s input %s: %w", t.Name, in.Name, err)
		}
		name := in.Name
		if name == "" {
			name = in.From
		}
		def.Inputs = append(def.Inputs, exprtask.Input{
			Name: name,
			Dep:  model.Dependency{Type: model.Named(in.From), Mode: mode},
		})
	}

	if t.Output != "" {
		def.Output = model.Named(t.Output)
	}

	for _, l := range t.Locks {
		switch l.Mode {
		case "shared":
			def.Locks = append(def.Locks, model.Shared(l.Name))
		case "", "exclusive":
			def.Locks = append(def.Locks, model.Exclusive(l.Name))
		default:
			return nil, fmt.Errorf("task %s lock %s: unknown mode %q", t.Name, l.Name, l.Mode)
		}
	}

	for _, s := range t.States {
		def.Gates = append(def.Gates, model.Named(s))
	}

	return exprtask.New(def)
}

func parseMode(s string) (model.DependencyMode, error) {
	switch s {
	case "", "any":
		return model.ModeAny, nil
	case "all":
		return model.ModeAll, nil
	default:
		return 0, fmt.Errorf("unknown dependency mode %q", s)
	}
}
