package logger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/dmitrymomot/bedrock/pkg/ipc"
)

// Sender delivers a message to the primary. *ipc.Conn implements it.
type Sender interface {
	Send(m ipc.Message) error
}

// relayHandler turns records into ipc.Log messages for the primary.
type relayHandler struct {
	sender   Sender
	level    slog.Leveler
	category Category
	attrs    []slog.Attr
	groups   []string
}

// NewRelayHandler creates a handler that forwards records of category to
// the primary instead of writing them locally.
func NewRelayHandler(sender Sender, category Category, level slog.Leveler) slog.Handler {
	return &relayHandler{sender: sender, category: category, level: level}
}

func (h *relayHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *relayHandler) Handle(_ context.Context, rec slog.Record) error {
	attrs := make([]slog.Attr, 0, rec.NumAttrs())
	rec.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	// Record attrs belong to the innermost group.
	for i := len(h.groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: h.groups[i], Value: slog.GroupValue(attrs...)}}
	}

	meta := make(map[string]any, len(h.attrs)+len(attrs))
	addMeta(meta, h.attrs)
	addMeta(meta, attrs)
	if len(meta) == 0 {
		meta = nil
	}

	return h.sender.Send(&ipc.Log{
		Time:     rec.Time,
		Level:    LevelName(rec.Level),
		Msg:      rec.Message,
		Category: string(h.category),
		Meta:     meta,
	})
}

func (h *relayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	if len(h.groups) == 0 {
		clone.attrs = append(slices.Clip(h.attrs), attrs...)
		return &clone
	}
	// Nest under the open groups.
	nested := attrs
	for i := len(h.groups) - 1; i >= 0; i-- {
		nested = []slog.Attr{{Key: h.groups[i], Value: slog.GroupValue(nested...)}}
	}
	clone.attrs = append(slices.Clip(h.attrs), nested...)
	return &clone
}

func (h *relayHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clip(h.groups), name)
	return &clone
}

func addMeta(meta map[string]any, attrs []slog.Attr) {
	for _, a := range attrs {
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			group := v.Group()
			if a.Key == "" {
				addMeta(meta, group)
				continue
			}
			sub, _ := meta[a.Key].(map[string]any)
			if sub == nil {
				sub = make(map[string]any, len(group))
			}
			addMeta(sub, group)
			meta[a.Key] = sub
			continue
		}
		if a.Key == "" {
			continue
		}
		meta[a.Key] = metaValue(v)
	}
}

// metaValue converts a value into something the wire codec carries as is.
func metaValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	}

	switch x := v.Any().(type) {
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any, []string, []byte, int, int32, string, bool, float32, float64, nil:
		return x
	default:
		return fmt.Sprintf("%+v", x)
	}
}

// Dispatch writes a relayed record into the handler of its category.
// Extra attrs, such as the worker id, are added to the record.
func (l *Loggers) Dispatch(ctx context.Context, m *ipc.Log, extra ...slog.Attr) error {
	level, err := ParseLevel(m.Level)
	if err != nil {
		level = LevelInfo
	}

	h := l.Handler(Category(m.Category))
	if !h.Enabled(ctx, level) {
		return nil
	}

	rec := slog.NewRecord(m.Time, level, m.Msg, 0)
	rec.AddAttrs(extra...)
	rec.AddAttrs(metaAttrs(m.Meta)...)
	return h.Handle(ctx, rec)
}

// metaAttrs converts relayed meta back into attributes, nested maps into groups.
func metaAttrs(meta map[string]any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(meta))
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		if sub, ok := meta[k].(map[string]any); ok {
			attrs = append(attrs, slog.Attr{Key: k, Value: slog.GroupValue(metaAttrs(sub)...)})
			continue
		}
		attrs = append(attrs, slog.Any(k, meta[k]))
	}
	return attrs
}
