package privilege

import "errors"

var (
	ErrUnknownUser  = errors.New("privilege: unknown user")
	ErrUnknownGroup = errors.New("privilege: unknown group")
	ErrInvalidID    = errors.New("privilege: invalid numeric id")
)
