// Package server exposes the jobs and health HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/logger"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Jobs is the scheduler surface served over HTTP.
type Jobs interface {
	GetJobs(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error)
	RegisterAll(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error)
	Healthy() bool
}

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

// Server is the HTTP front of the scheduler.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	store      Pinger
	jobs       Jobs
	logger     *slog.Logger

	shutdownTimeout time.Duration
}

// New builds the router. metricsHandler may be nil to omit /metrics.
func New(cfg Config, store Pinger, jobs Jobs, metricsHandler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:          gin.New(),
		store:           store,
		jobs:            jobs,
		logger:          log.With("component", "http_server"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}

	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes(metricsHandler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
	return s
}

func (s *Server) routes(metricsHandler http.Handler) {
	s.engine.GET("/health", s.health)

	jobs := s.engine.Group("/jobs")
	jobs.GET("/:task_id", s.getJobs)
	jobs.POST("/:task_id", s.registerJobs)

	if metricsHandler != nil {
		s.engine.GET("/metrics", gin.WrapH(metricsHandler))
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped.")
	return nil
}

// requestLogger logs each request through slog instead of gin's writer.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
