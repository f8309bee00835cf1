package throttle

import "errors"

var (
	// ErrConnConfigNil indicates a nil connection config was provided.
	ErrConnConfigNil = errors.New("connection config is nil")
	// ErrConnClosed indicates the connection has entered shutdown mode and no
	// further operations are accepted.
	ErrConnClosed = errors.New("connection closed")
	// ErrNotConnected indicates an operation that requires a live session was
	// attempted without one.
	ErrNotConnected = errors.New("not connected to control server")
	// ErrAlreadyConnected indicates Connect was called while a transport is live.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNoLocomotiveSelected indicates a command was attempted with an empty
	// roster. The operation is a no-op; the operator stays in control.
	ErrNoLocomotiveSelected = errors.New("no locomotive selected")
)
