package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/logger"
	"github.com/dmitrymomot/bedrock/pkg/privilege"
)

func (a *App) signalContext() (context.Context, context.CancelFunc) {
	if len(a.signals) == 0 {
		return context.WithCancel(a.baseCtx)
	}
	return signal.NotifyContext(a.baseCtx, a.signals...)
}

// prelude runs the start-up steps shared by both roles: command line,
// configuration, loggers and process identity.
func (a *App) prelude(ctx context.Context) error {
	if a.role == RoleWorker && a.conn == nil {
		id, err := strconv.Atoi(os.Getenv(WorkerEnv))
		if err != nil || id <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidWorker, os.Getenv(WorkerEnv))
		}
		conn, err := ipc.Inherited()
		if err != nil {
			return err
		}
		a.conn = conn
		a.workerID = id
	}

	if err := a.parseCLI(ctx); err != nil {
		return err
	}
	if err := a.applyFlags(); err != nil {
		return err
	}
	if err := a.initLoggers(ctx); err != nil {
		return err
	}

	title := a.cfg.Core.Primary.Title
	if a.role == RoleWorker {
		title = a.cfg.Core.Worker.Title
	}
	if title != "" {
		if err := a.setTitle(title); err != nil {
			a.log.Warn("failed to set process title", slog.String("title", title), slog.Any("error", err))
		}
	}

	if starting := a.cfg.Core.Starting; !starting.IsZero() {
		if _, err := privilege.NewSwitcher(a.sysOpts...).Switch(starting); err != nil {
			return fmt.Errorf("bedrock: switch to starting user: %w", err)
		}
	}
	return nil
}

// initLoggers builds the loggers of this role and replays everything
// logged so far into them.
func (a *App) initLoggers(ctx context.Context) error {
	opts := []logger.Option{
		logger.WithOutput(a.stdout),
		logger.WithExtractors(eventExtractor),
	}

	var loggers *logger.Loggers
	if a.role == RoleWorker {
		loggers = logger.NewRelay(primarySender{a}, a.cfg.Loggers.MinLevel(), opts...)
	} else {
		l, err := logger.New(a.cfg.Loggers, opts...)
		if err != nil {
			return err
		}
		loggers = l
	}

	// Until both steps succeed, failures are reported on stderr.
	if _, err := a.bus.Trigger(ctx, events.LoggersInit, loggers); err != nil {
		return errors.Join(err, loggers.Close())
	}
	if err := a.early.Swap(loggers.Handler(logger.CategoryApp)); err != nil {
		return errors.Join(err, loggers.Close())
	}
	a.loggers = loggers
	return nil
}

// eventExtractor tags records logged by event listeners with the event type.
func eventExtractor(ctx context.Context) (slog.Attr, bool) {
	e, ok := events.FromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("event", e.Type), true
}

// fail reports an unrecoverable error and shuts the process down with
// exit code 1. Under the test command the error is re-raised instead.
func (a *App) fail(ctx context.Context, err error) int {
	if a.command == TestCommand {
		panic(err)
	}

	if a.loggers == nil {
		// Nothing configured yet: flush early records to the console.
		_ = a.early.Swap(logger.NewConsoleHandler(a.stderr, logger.LevelInfo, logger.ConsoleConfig{}))
		fmt.Fprintf(a.stderr, "bedrock: %v\n", err)
	}
	a.log.Log(ctx, logger.LevelCritical, "unrecoverable error", slog.Any("error", err))

	if _, emitErr := a.bus.Trigger(context.WithoutCancel(ctx), events.Error, err); emitErr != nil {
		a.log.Error("bedrock.error listener failed", slog.Any("error", emitErr))
	}

	if a.role == RoleWorker {
		return a.shutdownWorker(ctx, 1)
	}
	a.exiting.Store(true)
	a.closeLoggers()
	return 1
}

func (a *App) closeLoggers() {
	if a.loggers == nil {
		return
	}
	if err := a.loggers.Close(); err != nil {
		fmt.Fprintf(a.stderr, "bedrock: close loggers: %v\n", err)
	}
}
