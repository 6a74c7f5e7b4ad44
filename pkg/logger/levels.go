package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Log levels, from most to least verbose.
const (
	LevelSilly    = slog.Level(-12)
	LevelVerbose  = slog.Level(-8)
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarning  = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.Level(12)
)

var levelNames = []struct {
	name  string
	level slog.Level
}{
	{"silly", LevelSilly},
	{"verbose", LevelVerbose},
	{"debug", LevelDebug},
	{"info", LevelInfo},
	{"warning", LevelWarning},
	{"error", LevelError},
	{"critical", LevelCritical},
}

// ParseLevel converts a level name into a slog.Level.
// "warn" is accepted as an alias of "warning".
func ParseLevel(name string) (slog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warn" {
		name = "warning"
	}
	for _, l := range levelNames {
		if l.name == name {
			return l.level, nil
		}
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}

// LevelName returns the name of the closest level at or below l.
func LevelName(l slog.Level) string {
	name := levelNames[0].name
	for _, ln := range levelNames {
		if l >= ln.level {
			name = ln.name
		}
	}
	return name
}

// replaceLevel prints levels by name in handlers built on slog.HandlerOptions.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(l))
		}
	}
	return a
}
