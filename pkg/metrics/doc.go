// Package metrics exposes Prometheus metrics of the bedrock primary:
// live workers, restarts, exits, run-once traffic and relayed logs.
// Each [Supervisor] owns its registry so several can coexist in tests.
package metrics
