package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/internal/telemetry"
	"github.com/dropgate/dropgate/pkg/api/handlers"
	"github.com/dropgate/dropgate/pkg/chunk"
	"github.com/dropgate/dropgate/pkg/upload"
)

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Request tracing when telemetry is enabled
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// There is no global request timeout: chunk and probe bodies
// legitimately take minutes on slow links. The server read timeout is
// the outer bound.
func NewRouter(manager *upload.Manager, chunks *chunk.Store, config *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(traceRequests)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	users := handlers.NewUserHandler(manager)
	uploads := handlers.NewUploadHandler(manager, int64(config.MaxChunkSize))
	files := handlers.NewFileHandler(chunks)
	network := handlers.NewNetworkHandler(int64(config.MaxSampleSize))
	health := handlers.NewHealthHandler(manager)

	r.Route("/api", func(r chi.Router) {
		r.Post("/users/identify", users.Identify)

		r.Route("/uploads", func(r chi.Router) {
			r.Get("/", uploads.Snapshot)
			r.Post("/", uploads.Create)
			r.Delete("/history", uploads.ClearHistory)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", uploads.Get)
				r.Post("/chunk", uploads.Chunk)
				r.Post("/state", uploads.State)
			})
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", files.List)
			r.Get("/{name}", files.Download)
		})

		r.Post("/network/probe", network.Probe)
	})

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// traceRequests opens one span per request when tracing is enabled.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !telemetry.IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanHTTPRequest,
			trace.WithAttributes(
				telemetry.HTTPMethod(r.Method),
				telemetry.HTTPRoute(r.URL.Path),
				telemetry.ClientAddress(r.RemoteAddr),
			))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))
	})
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//
// Health probes complete at DEBUG level to keep polling out of the
// info log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}
