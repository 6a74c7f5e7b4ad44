package events

import (
	"context"
	"time"
)

// Event is a single occurrence published on the bus.
// It must not be modified once emitted.
type Event struct {
	Time    time.Time
	Details map[string]any
	ID      string
	Type    string
	Args    []any
}

// Arg returns the i-th positional argument, or nil when absent.
func (e *Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Listener handles an event.
// Returning ErrCancel cancels the emission; any other error fails it.
type Listener func(ctx context.Context, e *Event) error

// Lifecycle event types.
const (
	CLIInit     = "bedrock-cli.init"
	CLIParsed   = "bedrock-cli.parsed"
	CLIReady    = "bedrock-cli.ready"
	CLIExit     = "bedrock-cli.exit"
	LoggersInit = "bedrock-loggers.init"
	Configure   = "bedrock.configure"
	AdminInit   = "bedrock.admin.init"
	Init        = "bedrock.init"
	Start       = "bedrock.start"
	Ready       = "bedrock.ready"
	Started     = "bedrock.started"
	Stop        = "bedrock.stop"
	Exit        = "bedrock.exit"
	Error       = "bedrock.error"
)
