// Package api wires the peering lifecycle engine to its HTTP surface:
// the chi router, request-id/timeout middleware, and the
// liveness/readiness endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apihealth "github.com/autopeerd/autopeerd/pkg/api/health"
	apipeering "github.com/autopeerd/autopeerd/pkg/api/peering"
	"github.com/autopeerd/autopeerd/pkg/lifecycle"
	"github.com/autopeerd/autopeerd/pkg/logger"
	"github.com/autopeerd/autopeerd/pkg/token"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Serve starts the HTTP server on address and serves the peering API
// until ctx is canceled. The caller is responsible for signal handling.
// metricsHandler is optional; a nil value omits the /metrics endpoint.
func Serve(ctx context.Context, address, cookieDomain string, engine *lifecycle.Engine, tokens *token.Service, ready apihealth.Checker, metricsHandler http.Handler) error {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
	)

	routers := map[string]http.Handler{
		"/":        apihealth.Router(ready),
		"/peering": apipeering.Router(engine, tokens, cookieDomain),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	if metricsHandler != nil {
		r.Mount("/metrics", metricsHandler)
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting http server on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Infof("http server stopped")
	return nil
}
