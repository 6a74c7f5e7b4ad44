package internal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/bedrock/pkg/config"
	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/logger"
	"github.com/dmitrymomot/bedrock/pkg/privilege"
	"github.com/dmitrymomot/bedrock/pkg/runonce"
)

// WorkerEnv is set in the environment of every worker process to its id.
const WorkerEnv = "BEDROCK_WORKER_ID"

// TestCommand is the CLI command under which start-up failures panic
// instead of exiting, so a test runner can report them.
const TestCommand = "test"

// Role is the part a process plays in the cluster.
type Role int

const (
	RolePrimary Role = iota
	RoleWorker
)

func (r Role) String() string {
	if r == RoleWorker {
		return "worker"
	}
	return "primary"
}

const defaultShutdownTimeout = 30 * time.Second

// App runs one bedrock process. The same binary is started once as the
// primary, which supervises workers, and once per worker.
type App struct {
	baseCtx         context.Context
	bus             *events.Bus
	cfg             *config.Config
	early           *logger.Deferred
	log             *slog.Logger
	loggers         *logger.Loggers
	root            *cobra.Command
	spawner         Spawner
	conn            *ipc.Conn
	runOnce         *runonce.Client
	switcher        *privilege.Switcher
	stdout          io.Writer
	stderr          io.Writer
	setTitle        func(string) error
	stopped         chan struct{}
	stopOnce        sync.Once
	stopCode        atomic.Int64
	shutdownTimeout time.Duration
	command         string
	args            []string
	signals         []os.Signal
	sysOpts         []privilege.Option
	flags           cliFlags
	role            Role
	workerID        int
	exiting         atomic.Bool
	started         atomic.Bool
	sendBroken      atomic.Bool
}

// New creates an application with the given options.
// Listeners may be registered on it until Run is called.
//
// Example:
//
//	app := bedrock.New()
//	app.On(bedrock.EventStarted, func(ctx context.Context, e *bedrock.Event) error {
//	    return app.RunOnce(ctx, "seed", seed)
//	})
//	os.Exit(app.Run())
func New(opts ...Option) *App {
	a := &App{
		baseCtx:         context.Background(),
		cfg:             config.Default(),
		early:           logger.NewDeferred(),
		stdout:          os.Stdout,
		stderr:          os.Stderr,
		setTitle:        setProcessTitle,
		stopped:         make(chan struct{}),
		shutdownTimeout: defaultShutdownTimeout,
		args:            os.Args[1:],
		signals:         []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM},
	}
	a.log = slog.New(a.early)

	for _, opt := range opts {
		opt(a)
	}

	if a.bus == nil {
		a.bus = events.NewBus(events.WithLogger(a.log))
	}
	if a.spawner == nil {
		a.spawner = &execSpawner{stdout: a.stdout, stderr: a.stderr}
	}
	a.switcher = privilege.NewSwitcher(a.sysOpts...)
	a.root = newRootCommand(a)

	if a.conn != nil || os.Getenv(WorkerEnv) != "" {
		a.role = RoleWorker
	}
	return a
}

// Role reports whether this process is the primary or a worker.
func (a *App) Role() Role { return a.role }

// WorkerID returns the id of this worker, or 0 in the primary.
func (a *App) WorkerID() int { return a.workerID }

// Bus returns the lifecycle event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// On registers a listener for an event type.
func (a *App) On(eventType string, l events.Listener) { a.bus.On(eventType, l) }

// Emit publishes an event and waits for its listeners.
// It reports false when a listener canceled the emission.
func (a *App) Emit(ctx context.Context, eventType string, args ...any) (bool, error) {
	return a.bus.Trigger(ctx, eventType, args...)
}

// Config returns the process configuration. It is complete once
// bedrock-cli.parsed has been emitted.
func (a *App) Config() *config.Config { return a.cfg }

// Root returns the root CLI command. Listeners of bedrock-cli.init add
// their flags and commands to it.
//
// A command's Run or RunE and its hooks are executed by the primary while
// the command line is parsed, before any lifecycle event. Workers parse the
// same command line without running them. Work that needs the cluster
// belongs in a lifecycle listener that checks Command.
func (a *App) Root() *cobra.Command { return a.root }

// Command returns the name of the CLI command being run, or "" for the
// root command.
func (a *App) Command() string { return a.command }

// Logger returns the app category logger.
// Records logged before the loggers are configured are replayed once they are.
func (a *App) Logger() *slog.Logger { return a.log }

// CategoryLogger returns the logger of a category, falling back to the app
// logger until the loggers are configured.
func (a *App) CategoryLogger(category logger.Category) *slog.Logger {
	if a.loggers == nil {
		return a.log
	}
	return a.loggers.Get(category)
}

// Exiting reports whether the process has begun shutting down.
func (a *App) Exiting() bool { return a.exiting.Load() }

// Stop begins an orderly shutdown with the given exit code. Only the first
// call counts. In a worker the primary then shuts the whole cluster down
// with that code. Called during start-up, it stops before the next
// lifecycle event.
func (a *App) Stop(code int) {
	a.stopOnce.Do(func() {
		a.stopCode.Store(int64(code))
		close(a.stopped)
	})
}

// interrupted reports whether a shutdown was requested, and with which code.
func (a *App) interrupted(ctx context.Context) (int, bool) {
	select {
	case <-a.stopped:
		return int(a.stopCode.Load()), true
	default:
	}
	if ctx.Err() != nil {
		return 0, true
	}
	return 0, false
}

// RunOnce runs fn on exactly one worker of the cluster. Other callers with
// the same id wait for it and receive its error.
func (a *App) RunOnce(ctx context.Context, id string, fn runonce.Func, opts ...runonce.Option) error {
	if a.runOnce == nil {
		return ErrNotWorker
	}
	return a.runOnce.Do(ctx, id, fn, opts...)
}

// SetProcessUser switches the worker to the configured running user and,
// when the switch happened, tells the primary to do the same.
// It does its work at most once per process.
func (a *App) SetProcessUser() error {
	if a.role != RoleWorker {
		return ErrNotWorker
	}
	running := a.cfg.Core.Running
	switched, err := a.switcher.Switch(running)
	if err != nil {
		return err
	}
	if !switched {
		return nil
	}

	msg := &ipc.SwitchProcessUser{}
	if running.User != "" {
		if msg.UID, err = privilege.LookupUID(running.User); err != nil {
			return err
		}
	}
	if running.Group != "" {
		if msg.GID, err = privilege.LookupGID(running.Group); err != nil {
			return err
		}
	}
	a.log.Info("process user switched",
		slog.String("user", running.User),
		slog.String("group", running.Group),
	)
	return primarySender{a}.Send(msg)
}

// Run starts the process in its role and blocks until it has shut down.
// It returns the process exit code.
func (a *App) Run() (code int) {
	ctx, cancel := a.signalContext()
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			if a.command == TestCommand {
				panic(r)
			}
			code = a.fail(ctx, panicError(r))
		}
	}()

	if err := a.prelude(ctx); err != nil {
		if errors.Is(err, errHelp) {
			return 0
		}
		return a.fail(ctx, err)
	}

	if a.role == RoleWorker {
		return a.runWorker(ctx)
	}
	return a.runPrimary(ctx)
}
