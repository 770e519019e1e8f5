package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/demandplan/forecast-cache/internal/api"
	"github.com/demandplan/forecast-cache/internal/core/config"
	"github.com/demandplan/forecast-cache/internal/core/health"
	"github.com/demandplan/forecast-cache/internal/core/middleware"
)

// Handlers bundles everything the route table mounts.
type Handlers struct {
	Cache *api.CacheHandler
	Query *api.QueryHandler
	DB    health.Pinger
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h Handlers) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(h.DB))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/forecast", func(r chi.Router) {
		r.Get("/", h.Query.Get)
		r.Post("/", h.Query.Post)
		r.Get("/cache", h.Cache.Get)
		r.Post("/cache", h.Cache.Post)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
