package runonce

import "errors"

var (
	ErrEmptyID     = errors.New("runonce: empty id")
	ErrNilFunc     = errors.New("runonce: nil function")
	ErrSend        = errors.New("runonce: failed to send to primary")
	ErrClosed      = errors.New("runonce: client closed")
	ErrUnknownID   = errors.New("runonce: completion for unknown id")
	ErrAlreadyDone = errors.New("runonce: id already completed")
	ErrNotOwner    = errors.New("runonce: completion from non-owner")
)
