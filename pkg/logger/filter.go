package logger

import (
	"context"
	"log/slog"
	"slices"
)

// moduleFilter drops records by the value of their ModuleKey attribute.
type moduleFilter struct {
	next    slog.Handler
	module  string
	only    []string
	exclude []string
}

func newModuleFilter(next slog.Handler, only, exclude []string) slog.Handler {
	if len(only) == 0 && len(exclude) == 0 {
		return next
	}
	return &moduleFilter{next: next, only: only, exclude: exclude}
}

func (h *moduleFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *moduleFilter) Handle(ctx context.Context, rec slog.Record) error {
	module := h.module
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == ModuleKey {
			module = a.Value.String()
			return false
		}
		return true
	})
	if !h.allowed(module) {
		return nil
	}
	return h.next.Handle(ctx, rec)
}

func (h *moduleFilter) allowed(module string) bool {
	if slices.Contains(h.exclude, module) {
		return false
	}
	return len(h.only) == 0 || slices.Contains(h.only, module)
}

func (h *moduleFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	for _, a := range attrs {
		if a.Key == ModuleKey {
			clone.module = a.Value.String()
		}
	}
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

func (h *moduleFilter) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}
