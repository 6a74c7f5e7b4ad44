package health

import "errors"

var (
	// ErrCheckFailed marks a readiness answer with at least one failed check.
	ErrCheckFailed = errors.New("bedrock/health: not ready")
	// ErrCheckTimeout wraps the error of a check cut off by the shared timeout.
	ErrCheckTimeout = errors.New("bedrock/health: check timed out")
)
