package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"
)

// NetworkHandler serves the bandwidth probe endpoint.
type NetworkHandler struct {
	maxSampleSize int64
}

// NewNetworkHandler creates a network handler. maxSampleSize caps the
// probe payload in bytes.
func NewNetworkHandler(maxSampleSize int64) *NetworkHandler {
	return &NetworkHandler{maxSampleSize: maxSampleSize}
}

// ProbeResponse reports how many bytes arrived and how long the
// transfer took. Clients derive an effective chunk size from it.
type ProbeResponse struct {
	Bytes     int64 `json:"bytes"`
	ElapsedMs int64 `json:"elapsedMs"`
}

// Probe consumes a multipart form with a file part named "sample" and
// measures the server-side receive time. Nothing is stored.
func (h *NetworkHandler) Probe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSampleSize+bodyOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeSampleTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, CodeMissingSample)
		return
	}

	sample, _, err := r.FormFile("sample")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingSample)
		return
	}
	defer func() { _ = sample.Close() }()

	n, err := io.Copy(io.Discard, sample)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError)
		return
	}

	writeJSON(w, http.StatusOK, ProbeResponse{
		Bytes:     n,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}
