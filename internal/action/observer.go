package action

import (
	"context"
	"time"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// Record kinds.
const (
	KindDispatched = "action.dispatched"
	KindCompleted  = "action.completed"
	KindFailed     = "action.failed"
)

// Record describes one run for observers.
type Record struct {
	Kind       string
	RunID      string
	Model      descriptor.ModelID
	Action     string
	User       string
	Background bool
	Total      int
	Result     *Result
	Err        string
	Started    time.Time
	Duration   time.Duration
}

// Observer is notified of dispatched, completed and failed runs. Observers
// run synchronously on the pipeline goroutine.
type Observer interface {
	ObserveAction(ctx context.Context, r Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Record)

func (f ObserverFunc) ObserveAction(ctx context.Context, r Record) { f(ctx, r) }

func (p *Pipeline) observe(ctx context.Context, r Record) {
	for _, o := range p.Observers {
		o.ObserveAction(ctx, r)
	}
}
