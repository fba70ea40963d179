// Package api exposes the flattening pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
	"github.com/spherical/pdf-flattener/internal/flatten"
	"github.com/spherical/pdf-flattener/internal/observability"
)

// Flattener is the pipeline as seen by the HTTP layer
type Flattener interface {
	Flatten(ctx context.Context, name string, data []byte, opts flatten.Options) (*domain.OutputDocument, error)
	DefaultOptions() domain.RasterOptions
	Check() error
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, flattener Flattener, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"pdf-flattener"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := flattener.Check(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "not_ready",
				"error":   string(domain.TypeOf(err)),
				"message": domain.Hint(domain.TypeOf(err)),
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	handler := NewFlattenHandler(logger, flattener,
		semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentRuns)), cfg.Flatten.MaxInputBytes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/flatten", handler.Flatten)
	})

	return r
}

// requestLogger logs one line per request through the service logger.
func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// Server wraps http.Server with graceful shutdown
type Server struct {
	srv      *http.Server
	logger   *observability.Logger
	shutdown time.Duration
}

// NewServer creates an HTTP server for handler
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *observability.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger:   logger,
		shutdown: cfg.GracefulShutdown,
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		serverErrors <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := s.srv.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Forced shutdown failed")
		}
		return err
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}
