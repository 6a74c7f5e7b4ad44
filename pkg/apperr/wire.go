package apperr

import (
	"errors"
	"fmt"
)

// WireVersion is the version of the serialized error schema.
const WireVersion = 1

// DefaultName is used for errors that carry no name of their own.
const DefaultName = "Error"

// maxDepth bounds the cause chain that is serialized.
const maxDepth = 32

// Wire is the transportable form of an error.
// Causes are nested records, newest first.
type Wire struct {
	Details map[string]any `cbor:"details,omitempty" json:"details,omitempty"`
	Cause   *Wire          `cbor:"cause,omitempty" json:"cause,omitempty"`
	Name    string         `cbor:"name" json:"name"`
	Message string         `cbor:"message" json:"message"`
	V       int            `cbor:"v" json:"v"`
}

// Encode converts err and its cause chain into a Wire record.
// Returns nil for a nil error.
func Encode(err error) *Wire {
	return encode(err, 0)
}

func encode(err error, depth int) *Wire {
	if err == nil || depth >= maxDepth {
		return nil
	}

	w := &Wire{V: WireVersion}

	var next error
	if ae, ok := err.(*Error); ok {
		w.Name = ae.Name
		w.Message = ae.Message
		w.Details = ae.Details
		next = ae.Cause
	} else {
		w.Name = typeName(err)
		w.Message = err.Error()
		next = errors.Unwrap(err)

		// A wrapped *Error names the whole link.
		var inner *Error
		if errors.As(err, &inner) {
			w.Name = inner.Name
			w.Details = inner.Details
		}
	}
	if w.Name == "" {
		w.Name = DefaultName
	}

	w.Cause = encode(next, depth+1)
	return w
}

// typeName names a foreign error after its Go type. The anonymous wrappers
// of the errors and fmt packages get DefaultName.
func typeName(err error) string {
	switch name := fmt.Sprintf("%T", err); name {
	case "*errors.errorString", "*errors.joinError", "*fmt.wrapError", "*fmt.wrapErrors":
		return DefaultName
	default:
		return name
	}
}

// Decode rebuilds an *Error chain from a Wire record.
// Returns nil for a nil record.
func Decode(w *Wire) error {
	if w == nil {
		return nil
	}
	return decode(w, 0)
}

func decode(w *Wire, depth int) *Error {
	if w == nil || depth >= maxDepth {
		return nil
	}

	e := &Error{
		Name:    w.Name,
		Message: w.Message,
		Details: w.Details,
	}
	if e.Name == "" {
		e.Name = DefaultName
	}
	if cause := decode(w.Cause, depth+1); cause != nil {
		e.Cause = cause
	}
	return e
}

// Validate checks that a record carries a supported schema version.
func (w *Wire) Validate() error {
	if w == nil {
		return nil
	}
	if w.V != WireVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.V)
	}
	return w.Cause.Validate()
}
