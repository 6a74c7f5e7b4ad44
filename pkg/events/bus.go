package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs a dispatch function outside the caller's stack.
type Scheduler func(fn func())

// Bus is a process-wide publish/subscribe primitive for lifecycle events.
// Listeners are invoked in registration order. There is no listener limit.
type Bus struct {
	listeners map[string][]Listener
	schedule  Scheduler
	logger    *slog.Logger
	mu        sync.RWMutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithScheduler replaces the default scheduler (a new goroutine per emission).
// Tests use it to control exactly when dispatch happens.
func WithScheduler(s Scheduler) Option {
	return func(b *Bus) {
		if s != nil {
			b.schedule = s
		}
	}
}

// WithLogger sets the logger used for emission tracing.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[string][]Listener),
		schedule:  func(fn func()) { go fn() },
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers a listener for the given event type.
func (b *Bus) On(typ string, l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[typ] = append(b.listeners[typ], l)
}

// ListenerCount returns the number of listeners registered for typ.
func (b *Bus) ListenerCount(typ string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[typ])
}

// Emit schedules an emission of typ with positional arguments.
// Listeners run one after another; the first cancel stops the chain.
func (b *Bus) Emit(ctx context.Context, typ string, args ...any) *Future {
	return b.EmitEvent(ctx, &Event{Type: typ, Args: args})
}

// EmitEvent schedules an emission of a prepared event.
// Time and ID are stamped when absent.
func (b *Bus) EmitEvent(ctx context.Context, e *Event) *Future {
	return b.emit(ctx, stamp(e), false)
}

// EmitParallel schedules an emission whose listeners run concurrently.
// A cancel from any listener resolves the emission to false.
func (b *Bus) EmitParallel(ctx context.Context, typ string, args ...any) *Future {
	return b.emit(ctx, stamp(&Event{Type: typ, Args: args}), true)
}

// Trigger emits typ and waits for all listeners to settle.
func (b *Bus) Trigger(ctx context.Context, typ string, args ...any) (bool, error) {
	return b.Emit(ctx, typ, args...).Wait(ctx)
}

func stamp(e *Event) *Event {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e
}

func (b *Bus) emit(ctx context.Context, e *Event, parallel bool) *Future {
	f := newFuture()
	b.schedule(func() {
		// Listeners are read at dispatch time, not at emit time.
		b.mu.RLock()
		listeners := append([]Listener(nil), b.listeners[e.Type]...)
		b.mu.RUnlock()

		b.logger.DebugContext(ctx, "emitting event",
			slog.String("event", e.Type),
			slog.Int("listeners", len(listeners)),
		)

		if parallel {
			f.resolve(dispatchParallel(ctx, e, listeners))
			return
		}
		f.resolve(dispatchSequential(ctx, e, listeners))
	})
	return f
}

func dispatchSequential(ctx context.Context, e *Event, listeners []Listener) (bool, error) {
	for _, l := range listeners {
		err := invoke(ctx, e, l)
		if errors.Is(err, ErrCancel) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func dispatchParallel(ctx context.Context, e *Event, listeners []Listener) (bool, error) {
	var canceled atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		g.Go(func() error {
			err := invoke(gctx, e, l)
			if errors.Is(err, ErrCancel) {
				canceled.Store(true)
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return !canceled.Load(), nil
}

func invoke(ctx context.Context, e *Event, l Listener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Type: e.Type, Value: r, Stack: debug.Stack()}
		}
	}()
	if err := l(ContextWithEvent(ctx, e), e); err != nil {
		if errors.Is(err, ErrCancel) {
			return err
		}
		return fmt.Errorf("events: %s: %w", e.Type, err)
	}
	return nil
}

// Future is the pending result of an emission.
type Future struct {
	done chan struct{}
	err  error
	ok   bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(ok bool, err error) {
	f.ok = ok
	f.err = err
	close(f.done)
}

// Done is closed once every listener has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the emission settles or ctx ends.
// It returns false when a listener canceled the emission.
func (f *Future) Wait(ctx context.Context) (bool, error) {
	select {
	case <-f.done:
		return f.ok, f.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
