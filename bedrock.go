package bedrock

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/dmitrymomot/bedrock/internal"
	"github.com/dmitrymomot/bedrock/pkg/config"
	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/privilege"
	"github.com/dmitrymomot/bedrock/pkg/runonce"
)

// Type aliases - public API
type (
	// App is one process of a bedrock cluster, primary or worker.
	App = internal.App

	// Option configures the application.
	Option = internal.Option

	// Role tells whether the process supervises workers or is one.
	Role = internal.Role

	// Spawner starts worker processes.
	Spawner = internal.Spawner

	// Process is a running worker as seen by the primary.
	Process = internal.Process

	// Event is a lifecycle or user event delivered to listeners.
	Event = events.Event

	// Listener handles an event. Returning an error fails the emission.
	Listener = events.Listener

	// Config is the merged configuration of the process.
	Config = config.Config

	// RunOnceFunc is the work a RunOnce call performs at most once.
	RunOnceFunc = runonce.Func

	// RunOnceOption configures a RunOnce call.
	RunOnceOption = runonce.Option
)

// Process roles.
const (
	RolePrimary = internal.RolePrimary
	RoleWorker  = internal.RoleWorker
)

// Lifecycle events, in the order a worker emits them.
const (
	EventCLIInit     = events.CLIInit
	EventCLIParsed   = events.CLIParsed
	EventLoggersInit = events.LoggersInit
	EventCLIReady    = events.CLIReady
	EventConfigure   = events.Configure
	EventAdminInit   = events.AdminInit
	EventInit        = events.Init
	EventStart       = events.Start
	EventReady       = events.Ready
	EventStarted     = events.Started
	EventStop        = events.Stop
	EventCLIExit     = events.CLIExit
	EventExit        = events.Exit
	EventError       = events.Error
)

// WorkerEnv is the environment variable that marks a worker process.
const WorkerEnv = internal.WorkerEnv

// Errors for checking return values.
var (
	ErrNotWorker     = internal.ErrNotWorker
	ErrSpawn         = internal.ErrSpawn
	ErrHandshake     = internal.ErrHandshake
	ErrPrimaryGone   = internal.ErrPrimaryGone
	ErrInvalidWorker = internal.ErrInvalidWorker
	ErrNoWorkers     = internal.ErrNoWorkers
	ErrShuttingDown  = internal.ErrShuttingDown
	ErrCancel        = events.ErrCancel
)

// New creates the application for the current process.
// The role is detected from the environment unless WithChannel is given.
//
// Example:
//
//	app := bedrock.New()
//	app.On(bedrock.EventStarted, func(ctx context.Context, _ *bedrock.Event) error {
//	    return app.RunOnce(ctx, "migrate", migrate)
//	})
//	bedrock.Start(app)
func New(opts ...Option) *App {
	return internal.New(opts...)
}

// Start runs the application and exits the process with its exit code.
func Start(app *App) {
	os.Exit(app.Run())
}

// AllowOnRestart lets a RunOnce id run again in a replacement worker when
// its owner crashed before completing it.
func AllowOnRestart() RunOnceOption {
	return runonce.AllowOnRestart()
}

// Options

// WithArgs sets the command line arguments, without the program name.
// Defaults to os.Args[1:].
func WithArgs(args ...string) Option {
	return internal.WithArgs(args...)
}

// WithConfig sets the base configuration files and flags are merged into.
func WithConfig(cfg *Config) Option {
	return internal.WithConfig(cfg)
}

// WithBus sets the event bus shared with collaborators.
func WithBus(bus *events.Bus) Option {
	return internal.WithBus(bus)
}

// WithOutput sets the console streams.
// Defaults to os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return internal.WithOutput(stdout, stderr)
}

// WithSignals sets the signals that stop the process.
// Calling it without arguments disables signal handling.
func WithSignals(signals ...os.Signal) Option {
	return internal.WithSignals(signals...)
}

// WithContext sets a custom base context.
// Defaults to context.Background() if not set.
func WithContext(ctx context.Context) Option {
	return internal.WithContext(ctx)
}

// WithSpawner replaces how the primary starts workers.
func WithSpawner(s Spawner) Option {
	return internal.WithSpawner(s)
}

// WithChannel runs the application as worker id over conn.
func WithChannel(conn *ipc.Conn, id int) Option {
	return internal.WithChannel(conn, id)
}

// WithSyscalls replaces the system calls used to switch process users.
func WithSyscalls(sys privilege.Syscalls) Option {
	return internal.WithSyscalls(sys)
}

// WithShutdownTimeout bounds how long the exit sequence may take.
// Defaults to 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return internal.WithShutdownTimeout(d)
}

// Section decodes the named section of the configuration into a new T.
//
// Example:
//
//	type HTTP struct {
//	    Addr string `yaml:"addr"`
//	}
//
//	httpCfg, err := bedrock.Section[HTTP](app.Config(), "http")
func Section[T any](cfg *Config, name string) (T, error) {
	var v T
	err := cfg.Section(name, &v)
	return v, err
}
