package stratadb

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner bounds the number of concurrently running goroutines spawned for
// a fan-out operation (e.g. InvalidateCaches broadcasting to every peer that
// routes through a migrated region).
type TaskRunner struct {
	eg          *errgroup.Group
	limiterChan chan struct{}
	ctx         context.Context
}

// NewTaskRunner creates a task runner that allows at most maxConcurrency tasks
// to run at once.
func NewTaskRunner(ctx context.Context, maxConcurrency int) *TaskRunner {
	eg, egCtx := errgroup.WithContext(ctx)
	return &TaskRunner{
		eg:          eg,
		limiterChan: make(chan struct{}, maxConcurrency),
		ctx:         egCtx,
	}
}

// Context returns the errgroup-derived context, canceled on first task error.
func (tr *TaskRunner) Context() context.Context {
	return tr.ctx
}

// Go enqueues task, blocking until a concurrency slot is free.
func (tr *TaskRunner) Go(task func() error) {
	tr.limiterChan <- struct{}{}
	tr.eg.Go(func() error {
		defer func() { <-tr.limiterChan }()
		return task()
	})
}

// Wait blocks until every enqueued task has completed, returning the first
// non-nil error encountered, if any.
func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
