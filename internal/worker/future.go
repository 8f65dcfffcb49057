package worker

import (
	"context"
	"time"
)

// Future is the pending result of a submitted operation. It is resolved
// exactly once, by the worker that ran the operation.
type Future struct {
	done     chan struct{}
	value    any
	err      error
	queued   time.Duration
	duration time.Duration
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the operation has finished and returns its outcome.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}

// Await is Result bounded by ctx. Giving up does not cancel the operation;
// it still runs to completion on its worker.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Waited returns how long the operation sat in the queue. Valid after Done.
func (f *Future) Waited() time.Duration {
	<-f.done
	return f.queued
}

// Duration returns how long the operation ran. Valid after Done.
func (f *Future) Duration() time.Duration {
	<-f.done
	return f.duration
}
