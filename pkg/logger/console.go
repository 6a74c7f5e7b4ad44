package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ModuleKey is the attribute key that names the module emitting a record.
const ModuleKey = "module"

// Module returns a logger whose records are tagged with a module name.
func Module(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String(ModuleKey, name))
}

var levelColors = map[string]lipgloss.Color{
	"silly":    lipgloss.Color("13"),
	"verbose":  lipgloss.Color("14"),
	"debug":    lipgloss.Color("39"),
	"info":     lipgloss.Color("42"),
	"warning":  lipgloss.Color("214"),
	"error":    lipgloss.Color("196"),
	"critical": lipgloss.Color("201"),
}

// consoleHandler writes one human readable line per record:
//
//	2024-05-01T12:00:00.000Z info: listening addr=:8080
type consoleHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	styles map[string]lipgloss.Style
	prefix string
	attrs  []byte
	opts   ConsoleConfig
}

// NewConsoleHandler creates the console transport handler.
func NewConsoleHandler(w io.Writer, level slog.Leveler, opts ConsoleConfig) slog.Handler {
	h := &consoleHandler{
		w:     w,
		mu:    &sync.Mutex{},
		level: level,
		opts:  opts,
	}
	if opts.Colorize {
		r := lipgloss.NewRenderer(w)
		h.styles = make(map[string]lipgloss.Style, len(levelColors))
		for name, c := range levelColors {
			h.styles[name] = r.NewStyle().Foreground(c)
		}
		h.styles["critical"] = h.styles["critical"].Bold(true)
	}
	return newModuleFilter(h, opts.Only, opts.Exclude)
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return !h.opts.Silent && level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, rec slog.Record) error {
	var buf bytes.Buffer

	if h.opts.Timestamps && !rec.Time.IsZero() {
		buf.WriteString(rec.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
		buf.WriteByte(' ')
	}

	name := LevelName(rec.Level)
	if style, ok := h.styles[name]; ok {
		name = style.Render(name)
	}
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(rec.Message)
	buf.Write(h.attrs)

	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var buf bytes.Buffer
	buf.Write(h.attrs)
	for _, a := range attrs {
		appendAttr(&buf, h.prefix, a)
	}
	clone := *h
	clone.attrs = buf.Bytes()
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			appendAttr(buf, prefix, ga)
		}
		return
	}

	buf.WriteByte(' ')
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		return v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
