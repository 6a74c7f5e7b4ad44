package middlewares

import (
	"log/slog"
	"net/http"
	"runtime"
)

// DefaultStackSize is the default maximum stack trace size in bytes.
const DefaultStackSize = 4096

// RecoverConfig configures the recover middleware.
type RecoverConfig struct {
	OnPanic           func(r *http.Request, err *PanicError) // Called after logging (optional)
	StackSize         int                                    // Max stack trace size (default: 4096)
	DisablePrintStack bool                                   // Disable stack trace in logs
}

// RecoverOption configures RecoverConfig.
type RecoverOption func(*RecoverConfig)

// WithRecoverStackSize sets the maximum stack trace size.
func WithRecoverStackSize(size int) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.StackSize = size
	}
}

// WithRecoverDisablePrintStack disables including stack trace in logs.
func WithRecoverDisablePrintStack() RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.DisablePrintStack = true
	}
}

// WithRecoverHook sets a function called with every recovered panic.
func WithRecoverHook(fn func(r *http.Request, err *PanicError)) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.OnPanic = fn
	}
}

// Recover returns middleware that recovers from panics, logs them to log
// and responds with 500.
func Recover(log *slog.Logger, opts ...RecoverOption) func(http.Handler) http.Handler {
	cfg := &RecoverConfig{
		StackSize: DefaultStackSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}

				pe := &PanicError{Value: rv}
				if !cfg.DisablePrintStack {
					stack := make([]byte, cfg.StackSize)
					pe.Stack = stack[:runtime.Stack(stack, false)]
				}

				if pe.Stack != nil {
					log.ErrorContext(r.Context(), "panic recovered", "panic", rv, "stack", string(pe.Stack))
				} else {
					log.ErrorContext(r.Context(), "panic recovered", "panic", rv)
				}
				if cfg.OnPanic != nil {
					cfg.OnPanic(r, pe)
				}

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
