package logger

import (
	"log/slog"
	"slices"
)

// Category groups log records that share a set of transports.
type Category string

// Built-in categories.
const (
	CategoryApp    Category = "app"
	CategoryAccess Category = "access"
	CategoryError  Category = "error"
)

// Transport names an output.
type Transport string

// Built-in transports.
const (
	TransportConsole Transport = "console"
	TransportFile    Transport = "file"
	TransportSentry  Transport = "sentry"
)

// ConsoleConfig controls the console transport.
type ConsoleConfig struct {
	// Only lists the modules whose records are printed. Empty means all.
	Only []string `yaml:"only"`
	// Exclude lists modules whose records are dropped.
	Exclude    []string `yaml:"exclude"`
	Timestamps bool     `yaml:"timestamps"`
	Colorize   bool     `yaml:"colorize"`
	Silent     bool     `yaml:"silent"`
}

// Config describes every logger of a process.
type Config struct {
	// Categories maps each category to its transports.
	Categories map[Category][]Transport `yaml:"categories"`
	// Files maps a category to the file its file transport appends to.
	Files   map[Category]string `yaml:"files"`
	Sentry  SentryConfig        `yaml:"sentry"`
	Level   string              `yaml:"level"`
	Console ConsoleConfig       `yaml:"console"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level: "info",
		Console: ConsoleConfig{
			Timestamps: true,
			Colorize:   true,
		},
		Categories: map[Category][]Transport{
			CategoryApp:    {TransportConsole},
			CategoryAccess: {TransportConsole},
			CategoryError:  {TransportConsole, TransportSentry},
		},
		Files: map[Category]string{},
	}
}

// MinLevel returns the configured threshold, falling back to info.
func (c Config) MinLevel() slog.Level {
	l, err := ParseLevel(c.Level)
	if err != nil {
		return LevelInfo
	}
	return l
}

// Validate checks the level and transport names.
func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := ParseLevel(c.Level); err != nil {
			return err
		}
	}
	for _, ts := range c.Categories {
		for _, t := range ts {
			if !knownTransport(t) {
				return unknownTransport(t)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Console.Only = slices.Clone(c.Console.Only)
	out.Console.Exclude = slices.Clone(c.Console.Exclude)
	out.Categories = make(map[Category][]Transport, len(c.Categories))
	for k, v := range c.Categories {
		out.Categories[k] = slices.Clone(v)
	}
	out.Files = make(map[Category]string, len(c.Files))
	for k, v := range c.Files {
		out.Files[k] = v
	}
	return out
}

func knownTransport(t Transport) bool {
	switch t {
	case TransportConsole, TransportFile, TransportSentry:
		return true
	}
	return false
}
