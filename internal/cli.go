package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dmitrymomot/bedrock/pkg/events"
	"github.com/dmitrymomot/bedrock/pkg/logger"
)

// Flag names.
const (
	flagConfig        = "config"
	flagLogLevel      = "log-level"
	flagLogTimestamps = "log-timestamps"
	flagLogColorize   = "log-colorize"
	flagLogExclude    = "log-exclude"
	flagLogOnly       = "log-only"
	flagLogTransports = "log-transports"
	flagSilent        = "silent"
	flagWorkers       = "workers"
	flagAdminAddr     = "admin-addr"
)

// cliFlags holds the values of the built-in flags.
type cliFlags struct {
	configs       []string
	logLevel      string
	logExclude    []string
	logOnly       []string
	logTransports string
	adminAddr     string
	workers       int
	logTimestamps bool
	logColorize   bool
	silent        bool
}

func newRootCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         "Run the application cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		// The lifecycle runs after parsing; the root command itself has no work.
		RunE: func(*cobra.Command, []string) error { return nil },
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	f := &a.flags
	pf := cmd.PersistentFlags()
	pf.StringArrayVar(&f.configs, flagConfig, nil, "Load a config file (repeatable, applied in order)")
	pf.StringVar(&f.logLevel, flagLogLevel, "", "Console log level (silly, verbose, debug, info, warning, error, critical)")
	pf.BoolVar(&f.logTimestamps, flagLogTimestamps, true, "Prefix console log lines with a timestamp")
	pf.BoolVar(&f.logColorize, flagLogColorize, true, "Colorize console log levels")
	pf.StringSliceVar(&f.logExclude, flagLogExclude, nil, "Modules to exclude from the console log")
	pf.StringSliceVar(&f.logOnly, flagLogOnly, nil, "Only log these modules to the console")
	pf.StringVar(&f.logTransports, flagLogTransports, "", `Change category transports, e.g. "app=+file;-console,access=file"`)
	pf.BoolVar(&f.silent, flagSilent, false, "Disable console logging")
	pf.IntVar(&f.workers, flagWorkers, 1, "Number of worker processes (0 = one per CPU)")
	pf.StringVar(&f.adminAddr, flagAdminAddr, "", "Listen address of the admin endpoint")

	return cmd
}

// parseCLI lets collaborators extend the command line, parses it and
// publishes the result.
func (a *App) parseCLI(ctx context.Context) error {
	if _, err := a.bus.Trigger(ctx, events.CLIInit, a.root); err != nil {
		return err
	}

	// A nil slice would make cobra fall back to os.Args.
	args := a.args
	if args == nil {
		args = []string{}
	}
	a.root.SetArgs(args)
	if a.role == RoleWorker {
		skipActions(a.root)
	}
	cmd, err := a.root.ExecuteC()
	if err != nil {
		return fmt.Errorf("bedrock: %w", err)
	}
	if cmd.Name() == "help" {
		return errHelp
	}
	if help, _ := cmd.Flags().GetBool("help"); help {
		return errHelp
	}
	if cmd != a.root {
		a.command = cmd.Name()
	}

	_, err = a.bus.Trigger(ctx, events.CLIParsed, cmd)
	return err
}

// skipActions replaces the actions and hooks of every collaborator command
// with no-ops. They already ran when the primary parsed the same command line.
func skipActions(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		skipActions(cmd)
		cmd.PersistentPreRun, cmd.PersistentPreRunE = nil, nil
		cmd.PreRun, cmd.PreRunE = nil, nil
		cmd.PostRun, cmd.PostRunE = nil, nil
		cmd.PersistentPostRun, cmd.PersistentPostRunE = nil, nil
		if !cmd.Runnable() {
			continue
		}
		cmd.Run = nil
		cmd.RunE = func(*cobra.Command, []string) error { return nil }
	}
}

// applyFlags loads the config files and applies the flags that were set
// on top of them.
func (a *App) applyFlags() error {
	for _, path := range a.flags.configs {
		if err := a.cfg.MergeFile(path); err != nil {
			return err
		}
	}

	flags := a.root.PersistentFlags()
	lc := &a.cfg.Loggers

	if changed(flags, flagLogLevel) {
		if _, err := logger.ParseLevel(a.flags.logLevel); err != nil {
			return err
		}
		lc.Level = a.flags.logLevel
	}
	if changed(flags, flagLogTimestamps) {
		lc.Console.Timestamps = a.flags.logTimestamps
	}
	if changed(flags, flagLogColorize) {
		lc.Console.Colorize = a.flags.logColorize
	}
	if changed(flags, flagLogExclude) {
		lc.Console.Exclude = a.flags.logExclude
	}
	if changed(flags, flagLogOnly) {
		lc.Console.Only = a.flags.logOnly
	}
	if changed(flags, flagSilent) {
		lc.Console.Silent = a.flags.silent
	}
	if changed(flags, flagLogTransports) {
		changes, err := logger.ParseTransports(a.flags.logTransports)
		if err != nil {
			return err
		}
		logger.ApplyTransports(lc, changes)
	}
	if changed(flags, flagWorkers) {
		a.cfg.Core.Workers = a.flags.workers
	}
	if changed(flags, flagAdminAddr) {
		a.cfg.Admin.Addr = a.flags.adminAddr
	}
	return lc.Validate()
}

func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}
