package apperr

import "errors"

// ErrUnsupportedVersion is returned when a serialized error uses an unknown schema version.
var ErrUnsupportedVersion = errors.New("apperr: unsupported wire version")
