// Package trace records scheduler activity — frame boundaries, dispatches,
// and completions — for offline inspection. Recording is optional: the
// scheduler is handed a Recorder and the default is a no-op.
package trace

import (
	"context"
	"time"
)

// EventKind classifies trace events.
type EventKind string

const (
	KindFrame    EventKind = "FRAME"
	KindDispatch EventKind = "DISPATCH"
	KindComplete EventKind = "COMPLETE"
	KindFail     EventKind = "FAIL"
)

// Event is one recorded scheduler occurrence.
type Event struct {
	Frame      uint64
	Kind       EventKind
	TaskID     string
	TaskName   string
	OutputType string
	Duration   time.Duration
	CreatedAt  time.Time
}

// Recorder persists trace events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	Close() error
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }
