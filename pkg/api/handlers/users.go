package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/upload"
)

// UserHandler serves the user identity endpoint.
type UserHandler struct {
	manager *upload.Manager
}

// NewUserHandler creates a user handler backed by the given manager.
func NewUserHandler(manager *upload.Manager) *UserHandler {
	return &UserHandler{manager: manager}
}

// IdentifyRequest is the optional body of POST /api/users/identify.
type IdentifyRequest struct {
	UserKey string `json:"userKey"`
}

// IdentifyResponse carries the acknowledged or newly allocated key
// together with the user's current uploads, so returning clients can
// resume in a single round trip.
type IdentifyResponse struct {
	UserKey string            `json:"userKey"`
	Created bool              `json:"created"`
	Uploads metadata.Snapshot `json:"uploads"`
}

// Identify acknowledges a known user key or allocates a fresh one.
// A presented key that is not on record is never claimed; the client
// gets a new key instead.
func (h *UserHandler) Identify(w http.ResponseWriter, r *http.Request) {
	// The body is optional: a brand-new client sends nothing.
	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeMissingFields)
		return
	}

	userKey, created, err := h.manager.IdentifyUser(r.Context(), req.UserKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	snapshot, err := h.manager.Snapshot(r.Context(), userKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IdentifyResponse{
		UserKey: userKey,
		Created: created,
		Uploads: snapshot,
	})
}
