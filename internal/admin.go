package internal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/bedrock/middlewares"
	"github.com/dmitrymomot/bedrock/pkg/health"
	"github.com/dmitrymomot/bedrock/pkg/logger"
)

// Admin server timeouts.
const (
	adminReadTimeout       = 15 * time.Second
	adminWriteTimeout      = 30 * time.Second
	adminIdleTimeout       = 120 * time.Second
	adminReadHeaderTimeout = 5 * time.Second
)

// adminRouter serves the primary's metrics and health probes.
func (a *App) adminRouter(s *supervisor) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middlewares.RequestID(),
		middlewares.AccessLog(a.CategoryLogger(logger.CategoryAccess)),
		middlewares.Recover(a.log),
	)

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(
		health.Checks{"workers": s.ready},
		health.WithLogger(a.log),
	))
	return r
}

// startAdmin starts the admin endpoint when an address is configured.
// The returned function shuts it down.
func (a *App) startAdmin(s *supervisor) (func(context.Context) error, error) {
	addr := a.cfg.Admin.Addr
	if addr == "" {
		return func(context.Context) error { return nil }, nil
	}

	server := &http.Server{
		Handler:           a.adminRouter(s),
		ReadTimeout:       adminReadTimeout,
		WriteTimeout:      adminWriteTimeout,
		IdleTimeout:       adminIdleTimeout,
		ReadHeaderTimeout: adminReadHeaderTimeout,
	}

	// Listen first to get actual address
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		a.log.Info("admin endpoint listening", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin endpoint failed", slog.Any("error", err))
		}
	}()
	return server.Shutdown, nil
}
