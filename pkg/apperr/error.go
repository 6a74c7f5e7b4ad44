package apperr

import "errors"

// Error is a named error with structured details and an optional cause.
// It is the shape every error takes after crossing a process boundary.
type Error struct {
	Cause   error
	Details map[string]any
	Name    string
	Message string
}

// New creates an Error with the given name, message, and details.
func New(name, message string, details map[string]any) *Error {
	return &Error{
		Name:    name,
		Message: message,
		Details: details,
	}
}

// Wrap creates an Error that records cause as its underlying error.
func Wrap(cause error, name, message string, details map[string]any) *Error {
	e := New(name, message, details)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Name != "" {
		return e.Name
	}
	return DefaultName
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Detail returns a single detail value.
func (e *Error) Detail(key string) (any, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// HasName reports whether any error in err's chain is an *Error with the given name.
func HasName(err error, name string) bool {
	for err != nil {
		var ae *Error
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Name == name {
			return true
		}
		err = ae.Cause
	}
	return false
}
