package model

// FuncTask is the simplest Task implementation: declarations as struct
// fields and a plain function body. Hosts that do not need custom task types
// can use it directly.
type FuncTask struct {
	TaskName  string
	Deps      []Dependency
	Out       ContextType
	Resources []Resource
	Gates     []ContextType
	Fn        func(snap *Snapshot) (any, error)
}

func (t *FuncTask) Name() string               { return t.TaskName }
func (t *FuncTask) Requirements() []Dependency { return t.Deps }
func (t *FuncTask) Output() ContextType        { return t.Out }
func (t *FuncTask) Locks() []Resource          { return t.Resources }
func (t *FuncTask) States() []ContextType      { return t.Gates }

func (t *FuncTask) Run(snap *Snapshot) (any, error) {
	if t.Fn == nil {
		return nil, nil
	}
	return t.Fn(snap)
}
