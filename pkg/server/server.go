// Package server exposes the sitemap pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	applog "github.com/Sriram-PR/sitemap-stats/pkg/log"
	"github.com/Sriram-PR/sitemap-stats/pkg/metrics"
	"github.com/Sriram-PR/sitemap-stats/pkg/pipeline"
)

const maxRequestBodyBytes = 4 << 20

// Server is the HTTP surface of the pipeline. It is constructed once at startup
// and carries every dependency the handlers need.
type Server struct {
	cfg          *config.AppConfig
	orchestrator *pipeline.Orchestrator
	metrics      *metrics.Metrics
	log          *logrus.Entry
	router       chi.Router
	httpServer   *http.Server
}

// New builds the router and its middleware chain
func New(cfg *config.AppConfig, orchestrator *pipeline.Orchestrator, m *metrics.Metrics, log *logrus.Entry) *Server {
	s := &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		metrics:      m,
		log:          log.WithField("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(applog.NewRequestLogFormatter(s.log).Middleware())
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.With(middleware.RequestSize(maxRequestBodyBytes)).Post("/process-sitemaps", s.handleProcessSitemaps)

	s.router = r
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Listening on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	s.log.Infof("Shutting down (waiting up to %v for in-flight batches)...", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("Server stopped")
	return <-errCh
}
