package internal

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/dmitrymomot/bedrock/pkg/config"
	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/privilege"
)

// Option configures the application.
type Option func(*App)

// WithArgs sets the command line arguments, without the program name.
// Defaults to os.Args[1:].
func WithArgs(args ...string) Option {
	return func(a *App) {
		a.args = args
	}
}

// WithConfig sets the configuration that config files are applied to.
// Defaults to config.Default().
//
// Example:
//
//	cfg := config.Default()
//	cfg.Core.Workers = 4
//	app := bedrock.New(bedrock.WithConfig(cfg))
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		if cfg != nil {
			a.cfg = cfg
		}
	}
}

// WithBus sets the event bus.
func WithBus(bus *events.Bus) Option {
	return func(a *App) {
		if bus != nil {
			a.bus = bus
		}
	}
}

// WithOutput sets the console streams. Defaults to os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// WithSignals sets the signals that shut the process down.
// Defaults to SIGHUP, SIGINT and SIGTERM. No signals disables signal handling.
func WithSignals(signals ...os.Signal) Option {
	return func(a *App) {
		a.signals = signals
	}
}

// WithContext sets the base context. Canceling it shuts the process down.
func WithContext(ctx context.Context) Option {
	return func(a *App) {
		if ctx != nil {
			a.baseCtx = ctx
		}
	}
}

// WithSpawner sets how the primary starts workers.
// Defaults to re-executing the current binary.
func WithSpawner(s Spawner) Option {
	return func(a *App) {
		if s != nil {
			a.spawner = s
		}
	}
}

// WithChannel runs the application as worker id, talking to its primary
// over conn instead of the inherited descriptors.
func WithChannel(conn *ipc.Conn, id int) Option {
	return func(a *App) {
		a.conn = conn
		a.workerID = id
	}
}

// WithSyscalls replaces the identity syscalls used by process user switches.
func WithSyscalls(sys privilege.Syscalls) Option {
	return func(a *App) {
		a.sysOpts = append(a.sysOpts, privilege.WithSyscalls(sys))
	}
}

// WithShutdownTimeout sets how long the primary waits for workers to stop
// after asking them to, before killing them. Defaults to 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}
