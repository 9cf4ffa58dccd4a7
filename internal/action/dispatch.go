package action

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/rbac"
)

// Job is the message handed to a dispatcher for a background run. The scope
// travels only as a signed token.
type Job struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Action     string         `json:"action"`
	ScopeToken string         `json:"scopeToken"`
	Params     map[string]any `json:"params,omitempty"`
	User       rbac.User      `json:"user"`
	Total      int            `json:"total"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

// Dispatcher accepts jobs for background execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Executor runs a dispatched job.
type Executor interface {
	Execute(ctx context.Context, job Job) (*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, job Job) (*Result, error) { return f(ctx, job) }

var (
	ErrQueueFull        = errors.New("action queue is full")
	ErrDispatcherClosed = errors.New("action dispatcher is closed")
)

// LocalDispatcher runs jobs on in-process worker goroutines fed by a
// buffered channel.
type LocalDispatcher struct {
	jobs    chan Job
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher returns a dispatcher with the given worker count and
// queue capacity.
func NewLocalDispatcher(workers, buffer int) *LocalDispatcher {
	return &LocalDispatcher{jobs: make(chan Job, max(buffer, 1)), workers: max(workers, 1)}
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (d *LocalDispatcher) Start(ctx context.Context, exec Executor) {
	for range d.workers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-d.jobs:
					if !ok {
						return
					}
					execute(ctx, exec, job)
				}
			}
		}()
	}
}

// Dispatch enqueues job without blocking.
func (d *LocalDispatcher) Dispatch(ctx context.Context, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// QueueLen returns the number of jobs waiting for a worker.
func (d *LocalDispatcher) QueueLen(context.Context) (int64, error) {
	return int64(len(d.jobs)), nil
}

// Close stops accepting jobs, drains the queue and waits for the workers.
func (d *LocalDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func execute(ctx context.Context, exec Executor, job Job) {
	res, err := exec.Execute(ctx, job)
	if err != nil {
		logger.L.Error("background action failed", "job", job.ID, "model", job.Model, "action", job.Action, "err", err)
		return
	}
	logger.L.Info("background action finished", "job", job.ID, "affected", res.Affected, "skipped", res.Skipped, "errors", len(res.Errors))
}
