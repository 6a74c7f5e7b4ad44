package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/metrics"
	"github.com/dmitrymomot/bedrock/pkg/runonce"
)

// workerRecord is the primary's view of one worker.
type workerRecord struct {
	proc        Process
	conn        *ipc.Conn
	id          int
	code        int
	online      bool
	intentional bool
}

// Loop events.
type (
	workerMessage struct {
		msg ipc.Message
		id  int
	}
	workerExit struct {
		err  error
		id   int
		code int
	}
	killWorkers struct{}
)

// supervisor runs the primary. All fields except the atomics are owned by
// the loop goroutine.
type supervisor struct {
	app       *App
	log       *slog.Logger
	metrics   *metrics.Supervisor
	registry  *runonce.Registry
	workers   map[int]*workerRecord
	events    chan any
	exited    chan struct{}
	killTimer *time.Timer
	killAfter time.Duration
	nextID    int
	exitCode  int
	exiting   bool
	live      atomic.Int32
	closing   atomic.Bool
}

func newSupervisor(a *App) *supervisor {
	return &supervisor{
		app:       a,
		log:       a.log,
		metrics:   metrics.NewSupervisor(),
		registry:  runonce.NewRegistry(),
		workers:   make(map[int]*workerRecord),
		events:    make(chan any, 64),
		exited:    make(chan struct{}),
		killAfter: a.shutdownTimeout,
	}
}

func (a *App) runPrimary(ctx context.Context) int {
	s := newSupervisor(a)
	n := a.cfg.WorkerCount()

	a.log.Info("starting primary",
		slog.Int("pid", os.Getpid()),
		slog.Int("workers", n),
	)

	stopAdmin, err := a.startAdmin(s)
	if err != nil {
		return a.fail(ctx, err)
	}

	code := s.run(ctx, n)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := stopAdmin(shutdownCtx); err != nil {
		a.log.Error("admin shutdown failed", slog.Any("error", err))
	}

	a.log.Info("primary exited", slog.Int("code", code))
	a.closeLoggers()
	return code
}

// run starts n workers and supervises them until every worker is gone.
// It returns the exit code of the primary.
func (s *supervisor) run(ctx context.Context, n int) int {
	defer func() {
		if s.killTimer != nil {
			s.killTimer.Stop()
		}
	}()

	for range n {
		if err := s.spawn(ctx); err != nil {
			s.log.Error("failed to start worker", slog.Any("error", err))
			s.beginExit(1)
			break
		}
	}
	s.checkExited()

	done, stopped := ctx.Done(), s.app.stopped
	for {
		select {
		case <-s.exited:
			return s.exitCode
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-done:
			done = nil
			s.log.Info("shutdown requested")
			s.beginExit(0)
		case <-stopped:
			stopped = nil
			code, _ := s.app.interrupted(ctx)
			s.beginExit(code)
		}
	}
}

func (s *supervisor) spawn(ctx context.Context) error {
	s.nextID++
	id := s.nextID

	proc, conn, err := s.app.spawner.Spawn(ctx, id, s.app.cfg.Core.Worker.Title)
	if err != nil {
		return err
	}

	w := &workerRecord{id: id, proc: proc, conn: conn}
	s.workers[id] = w
	s.live.Add(1)
	s.metrics.WorkersLive.Inc()
	s.metrics.WorkersStarted.Inc()
	s.log.Debug("worker started", slog.Int("worker", id), slog.Int("pid", proc.Pid()))

	go s.watch(w)
	return nil
}

// watch forwards the worker's messages to the loop, then its exit.
func (s *supervisor) watch(w *workerRecord) {
	for {
		m, err := w.conn.Recv()
		if err == nil {
			s.events <- workerMessage{id: w.id, msg: m}
			continue
		}
		if errors.Is(err, ipc.ErrUnknownType) || errors.Is(err, ipc.ErrUnsupportedVersion) {
			s.log.Warn("dropped worker message", slog.Int("worker", w.id), slog.Any("error", err))
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, ipc.ErrClosed) {
			s.log.Error("worker channel failed", slog.Int("worker", w.id), slog.Any("error", err))
		}
		break
	}

	code, err := w.proc.Wait()
	_ = w.conn.Close()
	s.events <- workerExit{id: w.id, code: code, err: err}
}

func (s *supervisor) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case workerMessage:
		w, ok := s.workers[ev.id]
		if !ok {
			return
		}
		if err := ev.msg.Accept(&primaryVisitor{ctx: ctx, s: s, w: w}); err != nil {
			s.log.Warn("worker message rejected",
				slog.Int("worker", w.id),
				slog.String("type", string(ev.msg.Type())),
				slog.Any("error", err),
			)
		}
	case workerExit:
		s.workerExited(ctx, ev)
	case killWorkers:
		for id, w := range s.workers {
			s.log.Warn("killing worker", slog.Int("worker", id))
			_ = w.proc.Kill()
		}
	}
}

func (s *supervisor) workerExited(ctx context.Context, ev workerExit) {
	w, ok := s.workers[ev.id]
	if !ok {
		return
	}
	delete(s.workers, ev.id)
	s.live.Add(-1)
	s.metrics.WorkersLive.Dec()

	if cleared := s.registry.WorkerExited(w.id); len(cleared) > 0 {
		s.log.Debug("cleared run-once records", slog.Int("worker", w.id), slog.Any("ids", cleared))
	}
	s.metrics.RunOncePending.Set(float64(s.registry.Pending()))

	attrs := []any{slog.Int("worker", w.id), slog.Int("code", ev.code), slog.Bool("online", w.online)}
	if ev.err != nil {
		attrs = append(attrs, slog.Any("error", ev.err))
	}

	switch {
	case w.intentional:
		s.metrics.WorkerExits.WithLabelValues(metrics.ExitIntentional).Inc()
		s.log.Info("worker exited", attrs...)
		s.beginExit(w.code)

	case s.exiting:
		s.metrics.WorkerExits.WithLabelValues(metrics.ExitIntentional).Inc()
		s.log.Debug("worker stopped", attrs...)

	default:
		s.metrics.WorkerExits.WithLabelValues(metrics.ExitCrash).Inc()
		s.log.Error("worker crashed", attrs...)
		if !s.app.cfg.Core.Restart {
			s.beginExit(ev.code)
			break
		}
		if err := s.spawn(ctx); err != nil {
			s.log.Error("failed to restart worker", slog.Any("error", err))
			s.beginExit(1)
			break
		}
		s.metrics.WorkerRestarts.Inc()
	}

	s.checkExited()
}

// beginExit stops every worker. The first call decides the exit code.
func (s *supervisor) beginExit(code int) {
	if s.exiting {
		return
	}
	s.exiting = true
	s.exitCode = code
	s.closing.Store(true)
	s.app.exiting.Store(true)

	s.log.Info("primary exiting", slog.Int("code", code), slog.Int("workers", len(s.workers)))
	for id, w := range s.workers {
		if err := w.proc.Signal(syscall.SIGTERM); err != nil {
			s.log.Debug("signal failed, killing worker", slog.Int("worker", id), slog.Any("error", err))
			_ = w.proc.Kill()
		}
	}

	if s.killAfter > 0 && len(s.workers) > 0 {
		s.killTimer = time.AfterFunc(s.killAfter, func() {
			select {
			case s.events <- killWorkers{}:
			case <-s.exited:
			}
		})
	}
	s.checkExited()
}

// checkExited closes exited once no worker is left. With no workers at
// all it closes right away.
func (s *supervisor) checkExited() {
	if len(s.workers) > 0 {
		return
	}
	select {
	case <-s.exited:
	default:
		close(s.exited)
	}
}

// deliver sends run-once replies. Replies to workers that are gone are
// dropped; their exit is handled separately.
func (s *supervisor) deliver(replies []runonce.Reply) {
	for _, r := range replies {
		w, ok := s.workers[r.To]
		if !ok {
			continue
		}
		if err := w.conn.Send(r.Msg); err != nil {
			s.log.Warn("failed to deliver run-once reply",
				slog.Int("worker", r.To),
				slog.String("id", r.Msg.ID),
				slog.Any("error", err),
			)
		}
	}
}

// ready reports whether the cluster serves: at least one live worker and
// no shutdown in progress.
func (s *supervisor) ready(context.Context) error {
	if s.closing.Load() {
		return ErrShuttingDown
	}
	if s.live.Load() == 0 {
		return ErrNoWorkers
	}
	return nil
}

// primaryVisitor handles one message from worker w.
type primaryVisitor struct {
	ctx context.Context
	s   *supervisor
	w   *workerRecord
}

func (v *primaryVisitor) VisitWorkerOnline(*ipc.WorkerOnline) error {
	v.w.online = true

	cwd, _ := os.Getwd()
	script, _ := os.Executable()
	if err := v.w.conn.Send(&ipc.WorkerInit{Cwd: cwd, Script: script}); err != nil {
		v.s.log.Error("failed to initialize worker", slog.Int("worker", v.w.id), slog.Any("error", err))
		_ = v.w.proc.Kill()
		return errors.Join(ErrHandshake, err)
	}
	v.s.log.Info("worker online", slog.Int("worker", v.w.id), slog.Int("pid", v.w.proc.Pid()))
	return nil
}

func (v *primaryVisitor) VisitWorkerInit(*ipc.WorkerInit) error {
	return ipc.ErrUnexpected
}

func (v *primaryVisitor) VisitSwitchProcessUser(m *ipc.SwitchProcessUser) error {
	switched, err := v.s.app.switcher.Switch(v.s.app.cfg.Core.Running)
	if err != nil {
		return fmt.Errorf("bedrock: switch process user: %w", err)
	}
	if switched {
		v.s.metrics.PrivilegeSwitch.Set(1)
		v.s.log.Info("process user switched",
			slog.Int("uid", m.UID),
			slog.Int("gid", m.GID),
			slog.Int("worker", v.w.id),
		)
	}
	return nil
}

func (v *primaryVisitor) VisitRunOnce(m *ipc.RunOnce) error {
	defer func() {
		v.s.metrics.RunOncePending.Set(float64(v.s.registry.Pending()))
	}()

	if !m.Done {
		outcome, replies := v.s.registry.Request(v.w.id, m)
		v.s.metrics.RunOnceRequests.WithLabelValues(string(outcome)).Inc()
		v.s.log.Debug("run-once requested",
			slog.String("id", m.ID),
			slog.Int("worker", v.w.id),
			slog.String("outcome", string(outcome)),
		)
		v.s.deliver(replies)
		return nil
	}

	replies, err := v.s.registry.Complete(v.w.id, m)
	if err != nil {
		return err
	}
	v.s.deliver(replies)
	return nil
}

func (v *primaryVisitor) VisitLog(m *ipc.Log) error {
	v.s.metrics.RelayedLogs.WithLabelValues(m.Level).Inc()
	return v.s.app.loggers.Dispatch(v.ctx, m, slog.Int("worker", v.w.id))
}

func (v *primaryVisitor) VisitCore(m *ipc.Core) error {
	if m.Kind != ipc.CoreExit {
		return ipc.ErrUnexpected
	}
	v.w.intentional = true
	v.w.code = m.Code
	return nil
}
