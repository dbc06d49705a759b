package run

import (
	"errors"
	"fmt"
)

var ErrEngineClosed = errors.New("run: engine closed")

// InvalidStateError is returned by Start when the request does not fit the
// engine's lifecycle. The engine state is left untouched.
type InvalidStateError struct {
	Phase  Phase
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("run: invalid state (%s): %s", e.Phase, e.Reason)
}
