package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropgate/dropgate/internal/telemetry"
	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/upload"
)

// multipartMemory is the in-memory threshold when parsing multipart
// forms. Parts beyond it spill to temporary files instead of RAM.
const multipartMemory = 32 << 20

// bodyOverhead is the allowance added on top of a payload limit for
// multipart boundaries and form fields.
const bodyOverhead = 1 << 20

// UploadHandler serves the upload lifecycle endpoints.
type UploadHandler struct {
	manager      *upload.Manager
	maxChunkSize int64
}

// NewUploadHandler creates an upload handler. maxChunkSize caps the
// payload of a single chunk in bytes.
func NewUploadHandler(manager *upload.Manager, maxChunkSize int64) *UploadHandler {
	return &UploadHandler{manager: manager, maxChunkSize: maxChunkSize}
}

// Snapshot returns the caller's uploads partitioned by status plus
// the finished-upload history.
func (h *UploadHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	userKey := r.URL.Query().Get("userKey")
	if userKey == "" {
		writeError(w, http.StatusBadRequest, CodeMissingUserKey)
		return
	}

	snapshot, err := h.manager.Snapshot(r.Context(), userKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetUploadResponse pairs an upload with where its record lives.
type GetUploadResponse struct {
	Upload   *metadata.UploadView `json:"upload"`
	Location upload.Location      `json:"location"`
}

// Get returns a single in-flight upload.
func (h *UploadHandler) Get(w http.ResponseWriter, r *http.Request) {
	userKey := r.URL.Query().Get("userKey")
	if userKey == "" {
		writeError(w, http.StatusBadRequest, CodeMissingUserKey)
		return
	}

	view, location, err := h.manager.GetUpload(r.Context(), userKey, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetUploadResponse{Upload: view, Location: location})
}

// CreateUploadRequest registers a new upload. FileSize and ChunkSize
// are pointers so absent and zero are distinguishable: absent is
// missing_fields, zero is invalid_sizes.
type CreateUploadRequest struct {
	UserKey   string `json:"userKey"`
	FileName  string `json:"fileName"`
	FileSize  *int64 `json:"fileSize"`
	ChunkSize *int64 `json:"chunkSize"`
	Persist   bool   `json:"persist"`
	Checksum  string `json:"checksum"`
}

// CreateUploadResponse returns the registered upload.
type CreateUploadResponse struct {
	Upload *metadata.UploadView `json:"upload"`
}

// Create registers a new upload for the caller.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUploadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.UserKey == "" {
		writeError(w, http.StatusBadRequest, CodeMissingUserKey)
		return
	}
	if req.FileName == "" || req.FileSize == nil || req.ChunkSize == nil {
		writeError(w, http.StatusBadRequest, CodeMissingFields)
		return
	}

	view, err := h.manager.CreateUpload(r.Context(), req.UserKey, upload.CreateRequest{
		FileName:  req.FileName,
		FileSize:  *req.FileSize,
		ChunkSize: *req.ChunkSize,
		Persist:   req.Persist,
		Checksum:  req.Checksum,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateUploadResponse{Upload: view})
}

// ChunkResponse acknowledges a stored chunk. When the chunk completes
// its upload, Status is "completed" and Uploads carries the refreshed
// snapshot.
type ChunkResponse struct {
	Status  string               `json:"status"`
	Upload  *metadata.UploadView `json:"upload"`
	Uploads *metadata.Snapshot   `json:"uploads,omitempty"`
}

// Chunk receives one chunk as a multipart form with fields userKey
// and chunkIndex plus a file part named "chunk".
func (h *UploadHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "id")

	// Cap the request body at the chunk limit plus form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxChunkSize+bodyOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeChunkTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, CodeMissingChunk)
		return
	}

	userKey := r.FormValue("userKey")
	if userKey == "" {
		writeError(w, http.StatusBadRequest, CodeMissingUserKey)
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidChunkIndex)
		return
	}

	part, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingChunk)
		return
	}
	defer func() { _ = part.Close() }()

	ctx, span := telemetry.StartChunkSpan(r.Context(), uploadID, index,
		telemetry.UserKey(userKey))
	defer span.End()

	view, completed, err := h.manager.RecordChunk(ctx, userKey, uploadID, index, part)
	if err != nil {
		telemetry.RecordError(ctx, err)
		writeServiceError(w, err)
		return
	}

	resp := ChunkResponse{Status: "ok", Upload: view}
	if completed {
		snapshot, err := h.manager.Snapshot(ctx, userKey)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp.Status = "completed"
		resp.Uploads = &snapshot
	}
	writeJSON(w, http.StatusOK, resp)
}

// StateRequest changes the lifecycle state of an upload.
type StateRequest struct {
	UserKey string `json:"userKey"`
	Action  string `json:"action"`
}

// StateResponse returns the affected upload plus the refreshed
// snapshot. For cancel and forget, Upload is the removed record.
type StateResponse struct {
	Upload  *metadata.UploadView `json:"upload"`
	Uploads metadata.Snapshot    `json:"uploads"`
}

// State applies pause, resume, cancel or forget to an upload.
func (h *UploadHandler) State(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.UserKey == "" {
		writeError(w, http.StatusBadRequest, CodeMissingUserKey)
		return
	}

	uploadID := chi.URLParam(r, "id")

	var view *metadata.UploadView
	var err error
	switch req.Action {
	case "pause":
		view, err = h.manager.UpdateStatus(r.Context(), req.UserKey, uploadID, metadata.StatusPaused)
	case "resume":
		view, err = h.manager.UpdateStatus(r.Context(), req.UserKey, uploadID, metadata.StatusActive)
	case "cancel":
		view, err = h.manager.RemoveUpload(r.Context(), req.UserKey, uploadID, false)
	case "forget":
		view, err = h.manager.RemoveUpload(r.Context(), req.UserKey, uploadID, true)
	default:
		writeError(w, http.StatusBadRequest, CodeInvalidAction)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	snapshot, err := h.manager.Snapshot(r.Context(), req.UserKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Upload: view, Uploads: snapshot})
}

// ClearHistoryRequest identifies whose history to clear.
type ClearHistoryRequest struct {
	UserKey string `json:"userKey"`
}

// ClearHistory empties the caller's finished-upload history and
// returns the resulting snapshot. In-flight uploads are untouched.
func (h *UploadHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	var req ClearHistoryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.UserKey == "" {
		writeError(w, http.StatusBadRequest, CodeMissingUserKey)
		return
	}

	if err := h.manager.ClearHistory(r.Context(), req.UserKey); err != nil {
		writeServiceError(w, err)
		return
	}

	snapshot, err := h.manager.Snapshot(r.Context(), req.UserKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
