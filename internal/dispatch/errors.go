package dispatch

import "errors"

var (
	// ErrStopped is returned by Do when the loop is not running.
	ErrStopped = errors.New("dispatch: dispatcher stopped")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("dispatch: already running")
)
