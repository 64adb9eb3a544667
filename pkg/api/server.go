package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/pkg/chunk"
	"github.com/dropgate/dropgate/pkg/upload"
)

// Server provides the HTTP front end of the upload service.
//
// Endpoints:
//   - POST   /api/users/identify: allocate or acknowledge a user key
//   - GET    /api/uploads: per-user snapshot of uploads and history
//   - POST   /api/uploads: register a new upload
//   - GET    /api/uploads/{id}: one upload with its storage location
//   - POST   /api/uploads/{id}/chunk: receive one chunk
//   - POST   /api/uploads/{id}/state: pause, resume, cancel or forget
//   - DELETE /api/uploads/history: clear the finished-upload history
//   - GET    /api/files: list assembled artifacts
//   - GET    /api/files/{name}: download an artifact
//   - POST   /api/network/probe: measure effective upload throughput
//   - GET    /health, /health/ready: probes
//
// The server supports graceful shutdown with a bounded timeout.
type Server struct {
	server          *http.Server
	manager         *upload.Manager
	config          Config
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
}

// defaultShutdownTimeout bounds graceful shutdown when no explicit
// timeout has been configured.
const defaultShutdownTimeout = 5 * time.Second

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin
// serving requests.
//
// Defaults are applied here so the server works correctly even when
// created directly (e.g. in tests). This is idempotent with the
// defaults applied during config loading.
//
// Parameters:
//   - config: server configuration (port, timeouts, body limits)
//   - manager: upload manager (may be nil; readiness then reports
//     unavailable)
//   - chunks: chunk store backing the artifact endpoints
func NewServer(config Config, manager *upload.Manager, chunks *chunk.Store) *Server {
	config.applyDefaults()

	router := NewRouter(manager, chunks, &config)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           router,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		server:          server,
		manager:         manager,
		config:          config,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// SetShutdownTimeout bounds how long graceful shutdown may take once
// the serve context is cancelled. Values <= 0 keep the default.
func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown
// and returns.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an
//     error
func (s *Server) Start(ctx context.Context) error {
	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)
		logger.Debug("API endpoints available",
			"health", fmt.Sprintf("http://localhost:%d/health", s.config.Port),
			"uploads", fmt.Sprintf("http://localhost:%d/api/uploads", s.config.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// Create new context with timeout for graceful shutdown.
		// Don't use the cancelled ctx as it would cause immediate
		// shutdown.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently
// with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
