package protocols

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent bounds in-flight tasks of the default executor
const DefaultMaxConcurrent = 64

// Task is one unit of request work: building, sending and post-processing.
type Task func(ctx context.Context) (Response, error)

// Executor is the pool shared by every client. It runs each task on its own
// goroutine and bounds how many run at once.
type Executor struct {
	slots *semaphore.Weighted
	wg    sync.WaitGroup
}

// NewExecutor creates an executor running at most maxConcurrent tasks at once.
func NewExecutor(maxConcurrent int64) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Executor{slots: semaphore.NewWeighted(maxConcurrent)}
}

// Submit schedules task and returns immediately. The task is always invoked.
// If ctx ends while waiting for a slot, the task runs with that ended context
// without holding a slot, so it can report the deadline as its own outcome.
func (e *Executor) Submit(ctx context.Context, task Task) *Future {
	future := NewFuture()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.slots.Acquire(ctx, 1); err == nil {
			defer e.slots.Release(1)
		}
		future.Complete(task(ctx))
	}()
	return future
}

// Wait blocks until every submitted task has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

var (
	defaultExecutor     *Executor
	defaultExecutorOnce sync.Once
)

// DefaultExecutor returns the process-wide executor.
func DefaultExecutor() *Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutor = NewExecutor(DefaultMaxConcurrent)
	})
	return defaultExecutor
}
