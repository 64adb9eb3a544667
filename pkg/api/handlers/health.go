package handlers

import (
	"net/http"
	"time"

	"github.com/dropgate/dropgate/pkg/upload"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	manager *upload.Manager
}

// NewHealthHandler creates a health handler. The manager may be nil,
// in which case readiness reports unavailable.
func NewHealthHandler(manager *upload.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// healthResponse is the envelope returned by the probe endpoints.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   any       `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func healthy(details any) healthResponse {
	return healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

func unhealthy(msg string) healthResponse {
	return healthResponse{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     msg,
	}
}

// Liveness reports that the process is up. It never checks
// dependencies, so a wedged store does not get the process killed by
// an orchestrator.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthy(map[string]string{"service": "dropgate"}))
}

// Readiness reports whether the service can accept uploads.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthy("upload manager not initialized"))
		return
	}
	if err := h.manager.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthy(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthy(nil))
}
