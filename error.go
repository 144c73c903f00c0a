package conveyor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyActive is returned if a running stage is activated.
	ErrAlreadyActive = errors.New("stage already active")
	// ErrTerminated is returned if a terminated stage is activated
	// without being rewired to new queues.
	ErrTerminated = errors.New("stage terminated")
	// ErrInvalidState is returned if pipe method cannot be executed at
	// this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnknownStage is returned if a stage doesn't belong to the pipe.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrTransformation marks errors returned by processors.
	ErrTransformation = errors.New("transformation fault")
	// ErrSkip is returned by a processor to drop the current item on
	// purpose. It's not reported as a fault.
	ErrSkip = errors.New("skip item")
)

// FaultError is reported when a processor fails to transform an item.
// Faults are absorbed by the stage: the item is dropped and the stage
// continues with the next one.
type FaultError struct {
	Stage string
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("stage %s: %v: %v", e.Stage, ErrTransformation, e.Err)
}

// Is reports ErrTransformation for all faults.
func (e *FaultError) Is(err error) bool {
	return err == ErrTransformation
}

// Unwrap returns the processor error.
func (e *FaultError) Unwrap() error {
	return e.Err
}

// execErrors wraps errors that might occur when multiple stages are
// failing.
type execErrors []error

func (e execErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e execErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error is list is empty.
func (e execErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
