package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrymomot/bedrock/pkg/config"
	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/runonce"
)

var errInterrupted = errors.New("bedrock: start-up interrupted")

func (a *App) runWorker(ctx context.Context) int {
	a.runOnce = runonce.NewClient(primarySender{a})

	initCh := make(chan *ipc.WorkerInit, 1)
	lost := make(chan error, 1)
	go a.receive(&workerVisitor{a: a, init: initCh}, lost)

	started, err := a.startWorker(ctx, initCh, lost)
	switch {
	case errors.Is(err, errInterrupted):
		code, _ := a.interrupted(ctx)
		return a.shutdownWorker(ctx, code)
	case err != nil:
		return a.fail(ctx, err)
	case !started:
		return a.shutdownWorker(ctx, 0)
	}

	a.log.Info("worker started", slog.Int("pid", os.Getpid()))

	var code int
	select {
	case <-ctx.Done():
	case <-a.stopped:
		code, _ = a.interrupted(ctx)
	case err := <-lost:
		a.log.Error("lost connection to primary", slog.Any("error", err))
		code = 1
	}
	return a.shutdownWorker(ctx, code)
}

// startWorker runs the worker lifecycle up to bedrock.started. It returns
// false when a bedrock-cli.ready listener canceled the start-up.
func (a *App) startWorker(ctx context.Context, initCh <-chan *ipc.WorkerInit, lost <-chan error) (bool, error) {
	if err := (primarySender{a}).Send(&ipc.WorkerOnline{PID: os.Getpid()}); err != nil {
		return false, errors.Join(ErrHandshake, err)
	}

	var init *ipc.WorkerInit
	select {
	case init = <-initCh:
	case err := <-lost:
		return false, errors.Join(ErrHandshake, ErrPrimaryGone, err)
	case <-ctx.Done():
		return false, errInterrupted
	case <-a.stopped:
		return false, errInterrupted
	}
	if err := enterDir(init.Cwd); err != nil {
		return false, err
	}
	a.log.Debug("worker initialized", slog.String("cwd", init.Cwd), slog.String("script", init.Script))

	ok, err := a.bus.Trigger(ctx, events.CLIReady, a.command)
	if err != nil {
		return false, a.emitError(ctx, err)
	}
	if !ok {
		a.log.Debug("start-up canceled by a bedrock-cli.ready listener")
		return false, nil
	}

	if err := a.configure(ctx); err != nil {
		return false, err
	}
	if err := a.emit(ctx, events.AdminInit); err != nil {
		return false, err
	}
	if err := a.SetProcessUser(); err != nil {
		return false, err
	}
	for _, typ := range []string{events.Init, events.Start, events.Ready, events.Started} {
		if err := a.emit(ctx, typ); err != nil {
			return false, err
		}
	}
	a.started.Store(true)
	return true, nil
}

// configure emits bedrock.configure and checks that the values listed in
// core.ensureConfigOverride were changed by its listeners.
func (a *App) configure(ctx context.Context) error {
	var snap *config.Snapshot
	if eco := a.cfg.Core.EnsureConfigOverride; eco.Enable && len(eco.Fields) > 0 {
		s, err := a.cfg.Snapshot(eco.Fields)
		if err != nil {
			return err
		}
		snap = s
	}

	if err := a.emit(ctx, events.Configure, a.cfg); err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	return snap.Verify(a.cfg)
}

// emit triggers a lifecycle event unless a shutdown was requested.
func (a *App) emit(ctx context.Context, typ string, args ...any) error {
	if _, ok := a.interrupted(ctx); ok {
		return errInterrupted
	}
	_, err := a.bus.Trigger(ctx, typ, args...)
	return a.emitError(ctx, err)
}

func (a *App) emitError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := a.interrupted(ctx); ok {
		return errInterrupted
	}
	return err
}

// receive dispatches messages from the primary until the channel closes.
func (a *App) receive(v ipc.Visitor, lost chan<- error) {
	for {
		m, err := a.conn.Recv()
		if err != nil {
			if errors.Is(err, ipc.ErrUnknownType) || errors.Is(err, ipc.ErrUnsupportedVersion) {
				a.log.Warn("dropped message from primary", slog.Any("error", err))
				continue
			}
			if errors.Is(err, io.EOF) {
				err = ErrPrimaryGone
			}
			a.runOnce.Close(err)
			lost <- err
			return
		}
		if err := m.Accept(v); err != nil {
			a.log.Warn("message from primary rejected",
				slog.String("type", string(m.Type())),
				slog.Any("error", err),
			)
		}
	}
}

func enterDir(dir string) error {
	if dir == "" {
		return nil
	}
	if wd, err := os.Getwd(); err == nil && wd == dir {
		return nil
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("bedrock: enter primary working directory: %w", err)
	}
	return nil
}

// primarySender sends to the primary. The first failed send stops the
// worker with exit code 1: a worker that cannot reach its primary can
// neither log nor report run-once results.
type primarySender struct{ a *App }

func (s primarySender) Send(m ipc.Message) error {
	err := s.a.conn.Send(m)
	if err != nil {
		s.a.sendFailed(m, err)
	}
	return err
}

// sendFailed reports the broken channel on stderr, since the loggers write
// through it, and stops the worker.
func (a *App) sendFailed(m ipc.Message, err error) {
	if a.exiting.Load() || !a.sendBroken.CompareAndSwap(false, true) {
		return
	}
	fmt.Fprintf(a.stderr, "bedrock: worker %d: send %s to primary: %v\n", a.workerID, m.Type(), err)
	a.Stop(1)
}

// workerVisitor handles messages from the primary.
type workerVisitor struct {
	a    *App
	init chan<- *ipc.WorkerInit
}

func (v *workerVisitor) VisitWorkerOnline(*ipc.WorkerOnline) error {
	return ipc.ErrUnexpected
}

func (v *workerVisitor) VisitWorkerInit(m *ipc.WorkerInit) error {
	select {
	case v.init <- m:
		return nil
	default:
		return ipc.ErrUnexpected
	}
}

func (v *workerVisitor) VisitSwitchProcessUser(*ipc.SwitchProcessUser) error {
	return ipc.ErrUnexpected
}

func (v *workerVisitor) VisitRunOnce(m *ipc.RunOnce) error {
	if !v.a.runOnce.Handle(m) {
		return fmt.Errorf("%w: %s", runonce.ErrUnknownID, m.ID)
	}
	return nil
}

func (v *workerVisitor) VisitLog(*ipc.Log) error {
	return ipc.ErrUnexpected
}

func (v *workerVisitor) VisitCore(m *ipc.Core) error {
	if m.Kind != ipc.CoreStop {
		return ipc.ErrUnexpected
	}
	v.a.Stop(m.Code)
	return nil
}
