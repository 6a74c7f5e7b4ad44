package internal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
)

// shutdownWorker runs the worker exit sequence and returns code.
// Later calls return immediately.
func (a *App) shutdownWorker(ctx context.Context, code int) int {
	if !a.exiting.CompareAndSwap(false, true) {
		return code
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.started.Load() {
		if _, err := a.bus.Trigger(shutdownCtx, events.Stop); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := a.bus.Trigger(shutdownCtx, events.CLIExit, code); err != nil {
		errs = append(errs, err)
	}
	if _, err := a.bus.Trigger(shutdownCtx, events.Exit); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		a.log.Error("shutdown completed with errors", slog.Any("error", errors.Join(errs...)))
	}

	a.log.Info("worker exiting", slog.Int("code", code))

	if a.runOnce != nil {
		a.runOnce.Close(nil)
	}
	if a.conn != nil {
		if err := a.conn.Send(&ipc.Core{Kind: ipc.CoreExit, Code: code}); err != nil {
			a.log.Debug("failed to report exit", slog.Any("error", err))
		}
	}
	a.closeLoggers()
	if a.conn != nil {
		_ = a.conn.Close()
	}
	return code
}
