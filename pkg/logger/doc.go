// Package logger provides the categorized, multi-transport logging used by
// bedrock primaries and workers.
//
// It builds on log/slog. Records are routed by category (app, access, error)
// to transports (console, file, sentry), and levels extend slog with silly,
// verbose and critical:
//
//	silly < verbose < debug < info < warning < error < critical
//
// # Building loggers
//
// New builds every category from a Config:
//
//	cfg := logger.DefaultConfig()
//	cfg.Level = "debug"
//	cfg.Files[logger.CategoryApp] = "/var/log/app.log"
//	logger.ApplyTransports(&cfg, changes) // from ParseTransports("app=+file")
//
//	loggers, err := logger.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer loggers.Close()
//
//	log := logger.Module(loggers.Get(logger.CategoryApp), "billing")
//	log.Info("invoice sent", slog.String("id", id))
//
// The console transport prints one line per record, optionally with
// timestamps and colored level names, and honours module allow and deny
// lists (ConsoleConfig.Only, ConsoleConfig.Exclude) keyed by the
// [ModuleKey] attribute.
//
// The sentry transport is skipped when no DSN is configured, so the same
// configuration works in development and production.
//
// # Workers
//
// Workers do not write logs themselves. NewRelay builds loggers whose
// records are sent to the primary as ipc.Log messages, and the primary feeds
// them to its own handlers with [Loggers.Dispatch].
//
// # Early records
//
// A process logs before its configuration is loaded. [Deferred] buffers those
// records and replays them once Swap installs the real handler:
//
//	early := logger.NewDeferred()
//	log := slog.New(early)
//	// ... parse flags, load config ...
//	_ = early.Swap(loggers.Handler(logger.CategoryApp))
package logger
