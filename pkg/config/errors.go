package config

import "errors"

var (
	ErrRead          = errors.New("config: failed to read file")
	ErrParse         = errors.New("config: failed to parse")
	ErrNoSection     = errors.New("config: no such section")
	ErrNotOverridden = errors.New("config: required override missing")
)
