package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/bedrock/pkg/logger"
	"github.com/dmitrymomot/bedrock/pkg/privilege"
)

// Config is the configuration shared by the primary and every worker.
// Sections owned by application modules live in Extra, keyed by their
// top-level name.
type Config struct {
	Extra   map[string]any `yaml:",inline"`
	Loggers logger.Config  `yaml:"loggers"`
	Admin   Admin          `yaml:"admin"`
	Core    Core           `yaml:"core"`
}

// Core configures process orchestration.
type Core struct {
	// Starting is the account the processes start as.
	Starting privilege.Credentials `yaml:"starting"`
	// Running is the account the processes switch to after start-up.
	Running              privilege.Credentials `yaml:"running"`
	Primary              Process               `yaml:"primary"`
	Worker               Process               `yaml:"worker"`
	EnsureConfigOverride EnsureConfigOverride  `yaml:"ensureConfigOverride"`
	// Workers is the number of worker processes. Zero means one per CPU.
	Workers int `yaml:"workers"`
	// Restart replaces workers that crash.
	Restart bool `yaml:"restart"`
}

// Process holds per-role process settings.
type Process struct {
	Title string `yaml:"title"`
}

// EnsureConfigOverride lists dotted config paths that bedrock.configure
// listeners must change.
type EnsureConfigOverride struct {
	Fields []string `yaml:"fields"`
	Enable bool     `yaml:"enable"`
}

// Admin configures the primary's admin endpoint.
type Admin struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Core: Core{
			Workers: 1,
			Restart: false,
			Primary: Process{Title: "bedrock1d"},
			Worker:  Process{Title: "bedrock1d worker"},
		},
		Loggers: logger.DefaultConfig(),
		Extra:   map[string]any{},
	}
}

// Load applies YAML files to the defaults, in order.
func Load(paths ...string) (*Config, error) {
	cfg := Default()
	for _, p := range paths {
		if err := cfg.MergeFile(p); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// MergeFile applies one YAML file on top of c. Keys absent from the file
// keep their current values; lists are replaced.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}
	if err := c.Merge(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Merge applies a YAML document on top of c.
func (c *Config) Merge(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Join(ErrParse, err)
	}
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}
	return nil
}

// WorkerCount resolves the configured worker count.
func (c *Config) WorkerCount() int {
	if c.Core.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Core.Workers
}

// Section decodes the Extra section name into out.
func (c *Config) Section(name string, out any) error {
	v, ok := c.Extra[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSection, name)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// SetSection stores v as the Extra section name.
func (c *Config) SetSection(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}
	c.Extra[name] = generic
	return nil
}
