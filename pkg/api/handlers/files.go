package handlers

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dropgate/dropgate/pkg/chunk"
)

// FileHandler serves the assembled artifacts.
type FileHandler struct {
	chunks *chunk.Store
}

// NewFileHandler creates a file handler backed by the given chunk
// store.
func NewFileHandler(chunks *chunk.Store) *FileHandler {
	return &FileHandler{chunks: chunks}
}

// ListFilesResponse returns the assembled artifacts on disk.
type ListFilesResponse struct {
	Files []chunk.Artifact `json:"files"`
}

// List returns every assembled artifact, sorted by name.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.chunks.ListArtifacts()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListFilesResponse{Files: files})
}

// Download streams one artifact as an attachment. The name is
// validated against the artifact charset before the filesystem is
// touched.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !chunk.ValidArtifactName(name) {
		writeError(w, http.StatusNotFound, CodeFileNotFound)
		return
	}

	path := h.chunks.ArtifactPath(name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, CodeFileNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
