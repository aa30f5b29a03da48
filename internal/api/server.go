// Package api exposes the indexer over HTTP.
//
// Every indexing route validates its input, dispatches a job and answers 202
// with the job id. Results are fetched from /api/v1/jobs/:id.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/jobs"
	"github.com/dshills/docindex-mcp/internal/logging"
)

const (
	// DefaultMaxUploadBytes limits upload request bodies when Options does not
	DefaultMaxUploadBytes = 64 << 20
	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout = 10 * time.Second
)

// HealthFunc reports engine reachability: reachable, unreachable or unknown
type HealthFunc func(ctx context.Context) string

// Options configures the HTTP server
type Options struct {
	Addr           string
	MaxUploadBytes int64
	Health         HealthFunc // nil reports "unknown"
}

// Server serves the REST API
type Server struct {
	indexer *indexer.Indexer
	jobs    *jobs.Registry
	opts    Options
	logger  *log.Logger
	router  *gin.Engine
}

// NewServer creates the server and registers its routes
func NewServer(idx *indexer.Indexer, registry *jobs.Registry, opts Options, logger *log.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Health == nil {
		opts.Health = func(context.Context) string { return "unknown" }
	}

	s := &Server{
		indexer: idx,
		jobs:    registry,
		opts:    opts,
		logger:  logging.OrDiscard(logger),
	}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	if gin.Mode() != gin.TestMode {
		if s.logger.GetLevel() == log.DebugLevel {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.MaxMultipartMemory = s.opts.MaxUploadBytes

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/index", s.handleIndexDocument)
		v1.POST("/index-folder", s.handleIndexFolder)
		v1.POST("/index-batch", s.handleIndexBatch)
		v1.GET("/jobs", s.handleListJobs)
		v1.GET("/jobs/:id", s.handleGetJob)
		v1.GET("/health", s.handleHealth)
	}

	return engine
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully. Jobs that
// are already dispatched keep running.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// requestLogger logs one line per request through the component logger
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		keyvals := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request", keyvals...)
			return
		}
		s.logger.Debug("request", keyvals...)
	}
}
