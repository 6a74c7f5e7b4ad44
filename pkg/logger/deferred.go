package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// maxBuffered bounds the records a Deferred keeps before it is swapped.
const maxBuffered = 1024

// Deferred is a handler that stands in until the real handlers exist.
// Records logged before Swap are buffered and replayed into the new handler.
// Loggers derived with With or WithGroup follow the swap.
type Deferred struct {
	state *deferredState
	ops   []handlerOp
	// resolved caches the target with ops applied.
	resolved atomic.Pointer[slog.Handler]
}

type deferredState struct {
	target  atomic.Pointer[slog.Handler]
	buf     []bufferedRecord
	dropped int
	mu      sync.Mutex
}

type bufferedRecord struct {
	ctx context.Context
	ops []handlerOp
	rec slog.Record
}

type handlerOp struct {
	attrs []slog.Attr
	group string
}

// NewDeferred creates a handler that buffers until Swap.
func NewDeferred() *Deferred {
	return &Deferred{state: &deferredState{}}
}

// Swap installs the real handler and replays buffered records into it.
// It may be called once.
func (d *Deferred) Swap(h slog.Handler) error {
	s := d.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.target.Load() != nil {
		return ErrAlreadySwapped
	}

	for _, b := range s.buf {
		target := applyOps(h, b.ops)
		if target.Enabled(b.ctx, b.rec.Level) {
			_ = target.Handle(b.ctx, b.rec)
		}
	}
	if s.dropped > 0 {
		rec := slog.NewRecord(time.Now(), LevelWarning, "dropped early log records", 0)
		rec.AddAttrs(slog.Int("dropped", s.dropped))
		_ = h.Handle(context.Background(), rec)
	}
	s.buf = nil
	s.target.Store(&h)
	return nil
}

func (d *Deferred) Enabled(ctx context.Context, level slog.Level) bool {
	if h := d.current(); h != nil {
		return h.Enabled(ctx, level)
	}
	return true
}

func (d *Deferred) Handle(ctx context.Context, rec slog.Record) error {
	if h := d.current(); h != nil {
		return h.Handle(ctx, rec)
	}

	s := d.state
	s.mu.Lock()
	// Swapped while waiting for the lock.
	if s.target.Load() != nil {
		s.mu.Unlock()
		return d.current().Handle(ctx, rec)
	}
	defer s.mu.Unlock()

	if len(s.buf) >= maxBuffered {
		s.dropped++
		return nil
	}
	s.buf = append(s.buf, bufferedRecord{ctx: context.WithoutCancel(ctx), ops: d.ops, rec: rec.Clone()})
	return nil
}

func (d *Deferred) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return d
	}
	return d.derive(handlerOp{attrs: attrs})
}

func (d *Deferred) WithGroup(name string) slog.Handler {
	if name == "" {
		return d
	}
	return d.derive(handlerOp{group: name})
}

func (d *Deferred) derive(op handlerOp) *Deferred {
	ops := make([]handlerOp, 0, len(d.ops)+1)
	ops = append(ops, d.ops...)
	ops = append(ops, op)
	return &Deferred{state: d.state, ops: ops}
}

func (d *Deferred) current() slog.Handler {
	if h := d.resolved.Load(); h != nil {
		return *h
	}
	target := d.state.target.Load()
	if target == nil {
		return nil
	}
	h := applyOps(*target, d.ops)
	d.resolved.Store(&h)
	return h
}

func applyOps(h slog.Handler, ops []handlerOp) slog.Handler {
	for _, op := range ops {
		if op.group != "" {
			h = h.WithGroup(op.group)
			continue
		}
		h = h.WithAttrs(op.attrs)
	}
	return h
}
