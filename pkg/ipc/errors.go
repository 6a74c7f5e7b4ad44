package ipc

import "errors"

var (
	ErrUnknownType        = errors.New("ipc: unknown message type")
	ErrUnsupportedVersion = errors.New("ipc: unsupported protocol version")
	ErrClosed             = errors.New("ipc: channel closed")
	ErrNoChannel          = errors.New("ipc: no inherited channel")
	ErrUnexpected         = errors.New("ipc: unexpected message")
)
