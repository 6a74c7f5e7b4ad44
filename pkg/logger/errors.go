package logger

import "errors"

var (
	ErrUnknownLevel      = errors.New("logger: unknown level")
	ErrUnknownTransport  = errors.New("logger: unknown transport")
	ErrInvalidTransports = errors.New("logger: invalid transports expression")
	ErrMissingFilePath   = errors.New("logger: file transport without a path")
	ErrAlreadySwapped    = errors.New("logger: deferred handler already swapped")
)
