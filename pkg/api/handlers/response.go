// Package handlers implements the HTTP handlers of the upload API.
//
// Successful responses are plain JSON objects with a 200 status.
// Failures use a flat envelope, {"error": "<code>"}, with a 4xx or
// 5xx status; the codes below are part of the API contract and
// clients branch on them.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/pkg/chunk"
	"github.com/dropgate/dropgate/pkg/metadata"
)

// Wire error codes.
const (
	CodeMissingUserKey    = "missing_user_key"
	CodeMissingFields     = "missing_fields"
	CodeInvalidSizes      = "invalid_sizes"
	CodeInvalidAction     = "invalid_action"
	CodeMissingChunk      = "missing_chunk"
	CodeMissingSample     = "missing_sample"
	CodeInvalidChunkIndex = "invalid_chunk_index"
	CodeChunkOutOfRange   = "chunk_out_of_range"
	CodeUploadNotFound    = "upload_not_found"
	CodeUserNotFound      = "user_not_found"
	CodeFileNotFound      = "file_not_found"
	CodeChunkTooLarge     = "chunk_too_large"
	CodeSampleTooLarge    = "sample_too_large"
	CodeChecksumMismatch  = "checksum_mismatch"
	CodeSizeMismatch      = "size_mismatch"
	CodeInternalError     = "internal_error"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode API response", "error", err)
	}
}

// writeError writes the flat error envelope used across the API.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeServiceError maps service-layer errors onto wire codes.
// Unrecognized errors become internal_error and are logged; the
// envelope never leaks error text to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	var missing *chunk.MissingChunkError
	var checksum *chunk.ChecksumMismatchError
	var size *chunk.SizeMismatchError

	switch {
	case errors.Is(err, metadata.ErrUserNotFound):
		writeError(w, http.StatusNotFound, CodeUserNotFound)
	case errors.Is(err, metadata.ErrUploadNotFound):
		writeError(w, http.StatusNotFound, CodeUploadNotFound)
	case errors.Is(err, metadata.ErrChunkOutOfRange):
		writeError(w, http.StatusBadRequest, CodeChunkOutOfRange)
	case errors.Is(err, metadata.ErrInvalidSizes):
		writeError(w, http.StatusBadRequest, CodeInvalidSizes)
	case errors.As(err, &missing):
		// The code carries the index of the lost part so the client
		// knows which chunk to re-send.
		writeError(w, http.StatusInternalServerError, missing.Code())
	case errors.As(err, &checksum):
		writeError(w, http.StatusUnprocessableEntity, CodeChecksumMismatch)
	case errors.As(err, &size):
		writeError(w, http.StatusInternalServerError, CodeSizeMismatch)
	default:
		logger.Error("API request failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError)
	}
}

// decodeJSONBody decodes the request body into v. On failure it
// writes a missing_fields error and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeMissingFields)
		return false
	}
	return true
}
