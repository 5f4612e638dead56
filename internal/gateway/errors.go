package gateway

import "errors"

// Sentinel errors for gateway operations.
var (
	// ErrServerNotStopped indicates that the server is not in stopped
	// state when a start operation is attempted.
	ErrServerNotStopped = errors.New("server is not in stopped state")

	// ErrServerNotRunning indicates that the server is not running when a
	// stop operation is attempted.
	ErrServerNotRunning = errors.New("server is not running")

	// ErrNoHandler indicates a start without any handler installed.
	ErrNoHandler = errors.New("no handler installed")

	// ErrMissingComponent indicates a Handler built without a required
	// pipeline component.
	ErrMissingComponent = errors.New("missing pipeline component")
)
