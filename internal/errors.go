package internal

import (
	"errors"
	"fmt"
)

var (
	ErrNotWorker     = errors.New("bedrock: only available in a worker")
	ErrSpawn         = errors.New("bedrock: failed to start worker")
	ErrHandshake     = errors.New("bedrock: worker handshake failed")
	ErrPrimaryGone   = errors.New("bedrock: channel to primary lost")
	ErrInvalidWorker = errors.New("bedrock: invalid worker id")
	ErrNoWorkers     = errors.New("bedrock: no live workers")
	ErrShuttingDown  = errors.New("bedrock: shutting down")

	errHelp = errors.New("bedrock: help requested")
)

// PanicError is a panic recovered on the main goroutine.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("bedrock: panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func panicError(v any) error {
	return &PanicError{Value: v}
}
