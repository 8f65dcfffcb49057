package worker

import "errors"

// Domain errors for the worker package.
var (
	// ErrPoolClosed is returned by Submit after Close has been called.
	ErrPoolClosed = errors.New("worker: pool closed")

	// ErrOperationPanicked is the result of an operation that panicked.
	ErrOperationPanicked = errors.New("worker: operation panicked")

	// ErrInvalidSize is returned by New for a non-positive pool size.
	ErrInvalidSize = errors.New("worker: pool size must be positive")
)
