// Package bedrock is a process framework for Go services that run as a
// cluster: one primary process and N worker processes started from the
// same binary.
//
// The primary parses the command line, loads the configuration and starts
// the workers. Workers do the actual work of the application, driven by a
// fixed sequence of lifecycle events collaborators subscribe to:
//
//	app := bedrock.New()
//
//	app.On(bedrock.EventCLIInit, func(_ context.Context, e *bedrock.Event) error {
//	    root := e.Arg(0).(*cobra.Command)
//	    root.PersistentFlags().String("listen", ":8080", "HTTP address")
//	    return nil
//	})
//
//	app.On(bedrock.EventStart, func(ctx context.Context, _ *bedrock.Event) error {
//	    return server.Start(ctx)
//	})
//
//	bedrock.Start(app)
//
// # Events
//
// A worker emits, in order: [EventCLIReady], [EventConfigure],
// [EventAdminInit], [EventInit], [EventStart], [EventReady] and
// [EventStarted]. On shutdown it emits [EventStop], [EventCLIExit] and
// [EventExit]. An error returned by a listener, or a panic on the main
// goroutine, emits [EventError] and stops the worker with exit code 1.
//
// # Configuration
//
// Configuration files given with --config are merged in order over the
// defaults, then flags are applied on top. Sections other than core,
// loggers and admin belong to collaborators:
//
//	httpCfg, err := bedrock.Section[HTTPConfig](app.Config(), "http")
//
// Fields listed under core.ensureConfigOverride must be changed by a
// bedrock.configure listener, or the worker fails.
//
// # Run once
//
// [App.RunOnce] runs a function in exactly one worker of the cluster.
// Other workers calling it with the same id wait for, and share, the
// first caller's result:
//
//	err := app.RunOnce(ctx, "migrate", func(ctx context.Context) error {
//	    return migrations.Up(ctx, db)
//	})
//
// # Logging
//
// Loggers are configured per category (app, access, error) with console,
// file and sentry transports. Workers relay their records to the primary,
// which writes them with the worker id attached.
package bedrock
