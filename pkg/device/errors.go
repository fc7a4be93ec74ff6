package device

import (
	"errors"
	"fmt"
)

// Fatal device errors. Convergence problems are never reported this way.
var (
	// ErrUnknownParameter indicates a parameter name no table recognises.
	ErrUnknownParameter = errors.New("device: unknown parameter")

	// ErrBadInitialCondition indicates an IC vector of the wrong length.
	ErrBadInitialCondition = errors.New("device: malformed initial condition vector")

	// ErrInvalidModel indicates model parameters without a physical solution.
	ErrInvalidModel = errors.New("device: invalid model parameters")

	// ErrMissingModel indicates an instance created without its model.
	ErrMissingModel = errors.New("device: model missing")

	// ErrNodeCount indicates an instance with the wrong number of terminals.
	ErrNodeCount = errors.New("device: wrong number of nodes")
)

// Error names the device and the stage a fatal error happened in.
type Error struct {
	Device string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(device, op string, err error) error {
	return &Error{Device: device, Op: op, Err: err}
}
