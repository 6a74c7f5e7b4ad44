// Package internal implements the bedrock process model.
//
// This package is internal and should not be used directly. Import
// "github.com/dmitrymomot/bedrock" instead, which re-exports the public API.
//
// # Roles
//
// The same binary runs in two roles. Started normally it becomes the
// primary: it parses the command line, loads the configuration, configures
// the loggers and re-executes itself once per worker. A worker is recognized
// by the BEDROCK_WORKER_ID environment variable and talks to the primary
// over two pipes inherited as file descriptors 3 and 4.
//
// # Worker lifecycle
//
// After the shared start-up a worker announces itself, waits for the
// primary's reply and then emits, in order:
//
//	bedrock-cli.ready     a false result skips the rest
//	bedrock.configure     followed by the ensureConfigOverride check
//	bedrock.admin.init
//	                      switch to the running user
//	bedrock.init
//	bedrock.start
//	bedrock.ready
//	bedrock.started
//
// On shutdown it emits bedrock.stop (only when started), bedrock-cli.exit
// and bedrock.exit, then reports its exit code to the primary.
//
// # Supervision
//
// The primary handles all worker messages on one goroutine. Log records
// relayed by workers are written to the primary's loggers, run-once
// requests are answered from its registry, and the first process user
// switch of any worker is mirrored by the primary. A worker that reported
// an exit code ends the cluster with that code. A worker that dies without
// reporting is a crash: it is replaced when core.restart is set, otherwise
// the cluster exits with its code.
package internal
