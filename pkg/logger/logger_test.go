package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bedrock/pkg/ipc"
	"github.com/dmitrymomot/bedrock/pkg/logger"
)

func plainConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Console.Timestamps = false
	cfg.Console.Colorize = false
	return cfg
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]slog.Level{
		"silly":    logger.LevelSilly,
		"verbose":  logger.LevelVerbose,
		"debug":    logger.LevelDebug,
		"info":     logger.LevelInfo,
		"warning":  logger.LevelWarning,
		"warn":     logger.LevelWarning,
		"ERROR":    logger.LevelError,
		"critical": logger.LevelCritical,
	} {
		got, err := logger.ParseLevel(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := logger.ParseLevel("loud")
	require.ErrorIs(t, err, logger.ErrUnknownLevel)

	require.Equal(t, "critical", logger.LevelName(logger.LevelCritical))
	require.Equal(t, "error", logger.LevelName(logger.LevelError+2))
	require.Equal(t, "silly", logger.LevelName(slog.Level(-20)))
}

func TestParseTransports(t *testing.T) {
	t.Parallel()

	t.Run("add and remove", func(t *testing.T) {
		t.Parallel()

		changes, err := logger.ParseTransports("app=-console;+file, error=-sentry")
		require.NoError(t, err)
		require.Len(t, changes, 3)

		cfg := logger.DefaultConfig()
		logger.ApplyTransports(&cfg, changes)
		require.Equal(t, []logger.Transport{logger.TransportFile}, cfg.Categories[logger.CategoryApp])
		require.Equal(t, []logger.Transport{logger.TransportConsole}, cfg.Categories[logger.CategoryError])
		require.Equal(t, []logger.Transport{logger.TransportConsole}, cfg.Categories[logger.CategoryAccess])
	})

	t.Run("unprefixed replaces the list", func(t *testing.T) {
		t.Parallel()

		changes, err := logger.ParseTransports("error=file;sentry")
		require.NoError(t, err)

		cfg := logger.DefaultConfig()
		logger.ApplyTransports(&cfg, changes)
		require.Equal(t, []logger.Transport{logger.TransportFile, logger.TransportSentry}, cfg.Categories[logger.CategoryError])
	})

	t.Run("invalid expressions", func(t *testing.T) {
		t.Parallel()

		_, err := logger.ParseTransports("app")
		require.ErrorIs(t, err, logger.ErrInvalidTransports)
		_, err = logger.ParseTransports("app=+")
		require.ErrorIs(t, err, logger.ErrInvalidTransports)
		_, err = logger.ParseTransports("app=+syslog")
		require.ErrorIs(t, err, logger.ErrUnknownTransport)

		changes, err := logger.ParseTransports("  ")
		require.NoError(t, err)
		require.Empty(t, changes)
	})
}

func TestConsoleHandler(t *testing.T) {
	t.Parallel()

	t.Run("plain line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(logger.NewConsoleHandler(&buf, logger.LevelInfo, logger.ConsoleConfig{}))
		log.With("worker", 2).WithGroup("req").Info("hello world", "path", "/a b", "ok", true)
		log.Debug("hidden")

		require.Equal(t, "info: hello world worker=2 req.path=\"/a b\" req.ok=true\n", buf.String())
	})

	t.Run("custom levels print by name", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(logger.NewConsoleHandler(&buf, logger.LevelSilly, logger.ConsoleConfig{}))
		log.Log(context.Background(), logger.LevelSilly, "s")
		log.Log(context.Background(), logger.LevelCritical, "c")

		require.Equal(t, "silly: s\ncritical: c\n", buf.String())
	})

	t.Run("silent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(logger.NewConsoleHandler(&buf, logger.LevelInfo, logger.ConsoleConfig{Silent: true}))
		log.Error("nothing")
		require.Empty(t, buf.String())
	})

	t.Run("module filters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := logger.NewConsoleHandler(&buf, logger.LevelInfo, logger.ConsoleConfig{
			Only:    []string{"db", "http"},
			Exclude: []string{"http"},
		})
		log := slog.New(h)
		logger.Module(log, "db").Info("kept")
		logger.Module(log, "http").Info("excluded")
		logger.Module(log, "mail").Info("not listed")
		log.Info("per record", logger.ModuleKey, "db")

		require.Equal(t, "info: kept module=db\ninfo: per record module=db\n", buf.String())
	})

	t.Run("timestamps", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(logger.NewConsoleHandler(&buf, logger.LevelInfo, logger.ConsoleConfig{Timestamps: true}))
		log.Info("tick")

		line := buf.String()
		require.True(t, strings.HasSuffix(line, " info: tick\n"), line)
		require.Contains(t, line, "T")
	})
}

func TestDeferred(t *testing.T) {
	t.Parallel()

	t.Run("buffers until swap", func(t *testing.T) {
		t.Parallel()

		d := logger.NewDeferred()
		log := slog.New(d)
		child := log.With("module", "boot")

		log.Info("first")
		child.Warn("second")

		var buf bytes.Buffer
		require.NoError(t, d.Swap(logger.NewConsoleHandler(&buf, logger.LevelInfo, logger.ConsoleConfig{})))
		require.Equal(t, "info: first\nwarning: second module=boot\n", buf.String())

		child.Info("third")
		require.Equal(t, "info: first\nwarning: second module=boot\ninfo: third module=boot\n", buf.String())

		require.ErrorIs(t, d.Swap(slog.DiscardHandler), logger.ErrAlreadySwapped)
	})

	t.Run("replay honours the new level", func(t *testing.T) {
		t.Parallel()

		d := logger.NewDeferred()
		log := slog.New(d)
		log.Debug("too low")
		log.Error("kept")

		var buf bytes.Buffer
		require.NoError(t, d.Swap(logger.NewConsoleHandler(&buf, logger.LevelInfo, logger.ConsoleConfig{})))
		require.Equal(t, "error: kept\n", buf.String())
	})
}

type captureSender struct {
	msgs []ipc.Message
	mu   sync.Mutex
}

func (s *captureSender) Send(m ipc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func TestRelay(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	relay := logger.NewRelay(sender, logger.LevelDebug)

	log := relay.Get(logger.CategoryAccess).With("module", "http").WithGroup("req")
	log.Info("served", "status", 200, "path", "/")
	relay.Get(logger.CategoryApp).Log(context.Background(), logger.LevelSilly, "dropped")

	require.Len(t, sender.msgs, 1)
	m, ok := sender.msgs[0].(*ipc.Log)
	require.True(t, ok)
	require.Equal(t, "info", m.Level)
	require.Equal(t, "served", m.Msg)
	require.Equal(t, "access", m.Category)
	require.Equal(t, map[string]any{
		"module": "http",
		"req":    map[string]any{"status": int64(200), "path": "/"},
	}, m.Meta)

	var buf bytes.Buffer
	cfg := plainConfig()
	loggers, err := logger.New(cfg, logger.WithOutput(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loggers.Close() })

	require.NoError(t, loggers.Dispatch(context.Background(), m, slog.Int("worker", 3)))
	require.Equal(t, "info: served worker=3 module=http req.path=/ req.status=200\n", buf.String())
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("file transport writes json with level names", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "logs", "app.log")
		cfg := plainConfig()
		cfg.Files[logger.CategoryApp] = path
		logger.ApplyTransports(&cfg, []logger.TransportChange{{Category: logger.CategoryApp, Transport: logger.TransportFile, Op: logger.OpAdd}})

		var buf bytes.Buffer
		loggers, err := logger.New(cfg, logger.WithOutput(&buf))
		require.NoError(t, err)

		loggers.Get(logger.CategoryApp).Warn("disk", "free", 10)
		require.NoError(t, loggers.Close())

		require.Equal(t, "warning: disk free=10\n", buf.String())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var rec map[string]any
		require.NoError(t, json.Unmarshal(data, &rec))
		require.Equal(t, "warning", rec["level"])
		require.Equal(t, "disk", rec["msg"])
		require.InDelta(t, 10, rec["free"], 0)
	})

	t.Run("file transport needs a path", func(t *testing.T) {
		t.Parallel()

		cfg := plainConfig()
		cfg.Categories[logger.CategoryApp] = []logger.Transport{logger.TransportFile}
		_, err := logger.New(cfg)
		require.ErrorIs(t, err, logger.ErrMissingFilePath)
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()

		cfg := plainConfig()
		cfg.Level = "loud"
		_, err := logger.New(cfg)
		require.ErrorIs(t, err, logger.ErrUnknownLevel)
	})

	t.Run("extractors apply to every category", func(t *testing.T) {
		t.Parallel()

		type key struct{}
		var buf bytes.Buffer
		loggers, err := logger.New(plainConfig(), logger.WithOutput(&buf), logger.WithExtractors(
			func(ctx context.Context) (slog.Attr, bool) {
				v, ok := ctx.Value(key{}).(string)
				return slog.String("event", v), ok
			},
		))
		require.NoError(t, err)

		ctx := context.WithValue(context.Background(), key{}, "bedrock.init")
		loggers.Get(logger.CategoryError).ErrorContext(ctx, "failed")
		require.Equal(t, "error: failed event=bedrock.init\n", buf.String())
	})
}
