package events

import (
	"errors"
	"fmt"
)

// ErrCancel is returned by a listener to cancel the emission.
// The emission then resolves to false instead of failing.
var ErrCancel = errors.New("events: emission canceled")

// PanicError wraps a value recovered from a panicking listener.
type PanicError struct {
	Value any
	Type  string
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("events: listener for %q panicked: %v", e.Type, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
