package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Loggers holds one handler per category.
type Loggers struct {
	handlers map[Category]slog.Handler
	closers  []io.Closer
	sentry   bool
}

type options struct {
	stdout     io.Writer
	extractors []ContextExtractor
}

// Option configures New and NewRelay.
type Option func(*options)

// WithOutput sets the console destination. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.stdout = w
		}
	}
}

// WithExtractors adds context extractors to every category.
func WithExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		o.extractors = append(o.extractors, extractors...)
	}
}

func buildOptions(opts []Option) options {
	o := options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds the handlers described by cfg.
// The sentry transport is skipped when no DSN is configured.
func New(cfg Config, opts ...Option) (*Loggers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	level := cfg.MinLevel()

	l := &Loggers{handlers: make(map[Category]slog.Handler, len(cfg.Categories))}

	console := NewConsoleHandler(o.stdout, level, cfg.Console)

	var sentryHandler slog.Handler
	files := make(map[string]slog.Handler)

	for cat, transports := range cfg.Categories {
		hs := make([]slog.Handler, 0, len(transports))
		for _, t := range transports {
			switch t {
			case TransportConsole:
				hs = append(hs, console)

			case TransportFile:
				path := cfg.Files[cat]
				if path == "" {
					_ = l.Close()
					return nil, fmt.Errorf("%w: category %q", ErrMissingFilePath, cat)
				}
				h, ok := files[path]
				if !ok {
					f, err := openLogFile(path)
					if err != nil {
						_ = l.Close()
						return nil, err
					}
					l.closers = append(l.closers, f)
					h = slog.NewJSONHandler(f, &slog.HandlerOptions{
						Level:       level,
						ReplaceAttr: replaceLevel,
					})
					files[path] = h
				}
				hs = append(hs, h)

			case TransportSentry:
				if sentryHandler == nil && !l.sentry {
					h, err := newSentryHandler(cfg.Sentry)
					if err != nil {
						// Continue without Sentry.
						slog.New(console).Error("failed to initialize Sentry", slog.String("error", err.Error()))
					}
					sentryHandler = h
					l.sentry = h != nil
				}
				if sentryHandler != nil {
					hs = append(hs, sentryHandler)
				}
			}
		}
		l.handlers[cat] = NewLogHandlerDecorator(newMultiHandler(hs...), o.extractors...)
	}

	if _, ok := l.handlers[CategoryApp]; !ok {
		l.handlers[CategoryApp] = NewLogHandlerDecorator(console, o.extractors...)
	}
	return l, nil
}

// NewRelay builds loggers for a worker: every category is relayed to the
// primary through sender.
func NewRelay(sender Sender, level slog.Leveler, opts ...Option) *Loggers {
	o := buildOptions(opts)
	l := &Loggers{handlers: make(map[Category]slog.Handler, 3)}
	for _, cat := range []Category{CategoryApp, CategoryAccess, CategoryError} {
		l.handlers[cat] = NewLogHandlerDecorator(NewRelayHandler(sender, cat, level), o.extractors...)
	}
	return l
}

// Handler returns the handler of category, or the app handler for an
// unknown category.
func (l *Loggers) Handler(category Category) slog.Handler {
	if h, ok := l.handlers[category]; ok {
		return h
	}
	return l.handlers[CategoryApp]
}

// Get returns a logger for category.
func (l *Loggers) Get(category Category) *slog.Logger {
	return slog.New(l.Handler(category))
}

// Close flushes Sentry and closes log files.
func (l *Loggers) Close() error {
	if l.sentry {
		flushSentry(2 * time.Second)
	}
	errs := make([]error, 0, len(l.closers))
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	l.closers = nil
	return errors.Join(errs...)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}
