package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry integration configuration.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	// MinLevel determines which levels reach Sentry (e.g. "warning" for warnings and errors).
	MinLevel string `yaml:"minLevel"`
}

// newSentryHandler initializes the Sentry SDK and returns its slog handler.
// It returns nil when no DSN is configured.
func newSentryHandler(cfg SentryConfig) (slog.Handler, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	env := cfg.Environment
	if env == "" {
		env = "production"
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: env,
		EnableLogs:  true,
	}); err != nil {
		return nil, err
	}

	// Errors create Issues in Sentry, lower levels are stored as logs.
	eventLevel := []slog.Level{slog.LevelError}
	logLevel := []slog.Level{slog.LevelWarn, slog.LevelError}
	if lvl, err := ParseLevel(cfg.MinLevel); err == nil && lvl >= LevelError {
		logLevel = []slog.Level{slog.LevelError}
	}

	h := sentryslog.Option{
		EventLevel: eventLevel,
		LogLevel:   logLevel,
	}.NewSentryHandler(context.Background())
	return &stdLevels{next: h}, nil
}

// flushSentry waits for buffered Sentry events.
func flushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// stdLevels maps the extra bedrock levels onto the four slog levels, for
// handlers that only understand those.
type stdLevels struct {
	next slog.Handler
}

func stdLevel(l slog.Level) slog.Level {
	switch {
	case l >= slog.LevelError:
		return slog.LevelError
	case l >= slog.LevelWarn:
		return slog.LevelWarn
	case l >= slog.LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func (h *stdLevels) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, stdLevel(level))
}

func (h *stdLevels) Handle(ctx context.Context, rec slog.Record) error {
	rec.Level = stdLevel(rec.Level)
	return h.next.Handle(ctx, rec)
}

func (h *stdLevels) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stdLevels{next: h.next.WithAttrs(attrs)}
}

func (h *stdLevels) WithGroup(name string) slog.Handler {
	return &stdLevels{next: h.next.WithGroup(name)}
}
