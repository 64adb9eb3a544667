package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dropgate/dropgate/pkg/id"
	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/upload"
)

func i64(v int64) *int64 { return &v }

func TestCreateUploadMissingUserKey(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := jsonRequest(t, http.MethodPost, "/api/uploads", CreateUploadRequest{
		FileName:  "data.bin",
		FileSize:  i64(10),
		ChunkSize: i64(6),
	})
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingUserKey {
		t.Errorf("Expected error %q, got %q", CodeMissingUserKey, code)
	}
}

func TestCreateUploadMissingFields(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)

	// fileSize absent entirely, which is distinct from zero.
	req := jsonRequest(t, http.MethodPost, "/api/uploads", CreateUploadRequest{
		UserKey:   key,
		FileName:  "data.bin",
		ChunkSize: i64(6),
	})
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingFields {
		t.Errorf("Expected error %q, got %q", CodeMissingFields, code)
	}
}

func TestCreateUploadInvalidSizes(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)

	req := jsonRequest(t, http.MethodPost, "/api/uploads", CreateUploadRequest{
		UserKey:   key,
		FileName:  "data.bin",
		FileSize:  i64(10),
		ChunkSize: i64(0),
	})
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeInvalidSizes {
		t.Errorf("Expected error %q, got %q", CodeInvalidSizes, code)
	}
}

func TestCreateUploadOK(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)

	req := jsonRequest(t, http.MethodPost, "/api/uploads", CreateUploadRequest{
		UserKey:   key,
		FileName:  "data.bin",
		FileSize:  i64(10),
		ChunkSize: i64(6),
		Persist:   true,
	})
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp CreateUploadResponse
	decodeBody(t, w, &resp)

	if len(resp.Upload.ID) != id.UploadIDLength {
		t.Errorf("Expected upload id length %d, got %d", id.UploadIDLength, len(resp.Upload.ID))
	}
	if resp.Upload.TotalChunks != 2 {
		t.Errorf("Expected 2 total chunks, got %d", resp.Upload.TotalChunks)
	}
	if len(resp.Upload.MissingChunks) != 2 {
		t.Errorf("Expected 2 missing chunks, got %v", resp.Upload.MissingChunks)
	}
	if resp.Upload.Status != metadata.StatusActive {
		t.Errorf("Expected status %q, got %q", metadata.StatusActive, resp.Upload.Status)
	}
}

func TestSnapshotRequiresUserKey(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	w := httptest.NewRecorder()
	h.Snapshot(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingUserKey {
		t.Errorf("Expected error %q, got %q", CodeMissingUserKey, code)
	}
}

func TestSnapshotUnknownUser(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads?userKey=ghost", nil)
	w := httptest.NewRecorder()
	h.Snapshot(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if code := wireError(t, w); code != CodeUserNotFound {
		t.Errorf("Expected error %q, got %q", CodeUserNotFound, code)
	}
}

func TestGetUpload(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, true)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID+"?userKey="+key, nil)
	w := httptest.NewRecorder()
	h.Get(w, withURLParam(req, "id", created.ID))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp GetUploadResponse
	decodeBody(t, w, &resp)

	if resp.Upload.ID != created.ID {
		t.Errorf("Expected upload %q, got %q", created.ID, resp.Upload.ID)
	}
	if resp.Location != upload.LocationPersistent {
		t.Errorf("Expected location %q, got %q", upload.LocationPersistent, resp.Location)
	}
}

func TestGetUploadUnknown(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/nope?userKey="+key, nil)
	w := httptest.NewRecorder()
	h.Get(w, withURLParam(req, "id", "nope"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if code := wireError(t, w); code != CodeUploadNotFound {
		t.Errorf("Expected error %q, got %q", CodeUploadNotFound, code)
	}
}

func TestChunkFlowCompletes(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, false)

	// First chunk: upload stays in flight.
	w := httptest.NewRecorder()
	h.Chunk(w, chunkRequest(t, created.ID, key, 0, "AAAAAA"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var first ChunkResponse
	decodeBody(t, w, &first)

	if first.Status != "ok" {
		t.Errorf("Expected status \"ok\", got %q", first.Status)
	}
	if first.Upload.ReceivedCount != 1 {
		t.Errorf("Expected 1 received chunk, got %d", first.Upload.ReceivedCount)
	}
	if first.Uploads != nil {
		t.Error("Expected no snapshot before completion")
	}

	// Last chunk: the upload completes and the response carries the
	// refreshed snapshot.
	w = httptest.NewRecorder()
	h.Chunk(w, chunkRequest(t, created.ID, key, 1, "BBBB"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var last ChunkResponse
	decodeBody(t, w, &last)

	if last.Status != "completed" {
		t.Errorf("Expected status \"completed\", got %q", last.Status)
	}
	if last.Upload.Status != metadata.StatusCompleted {
		t.Errorf("Expected upload status %q, got %q", metadata.StatusCompleted, last.Upload.Status)
	}
	if last.Uploads == nil {
		t.Fatal("Expected a snapshot on completion")
	}
	if len(last.Uploads.Active) != 0 {
		t.Errorf("Expected no active uploads after completion, got %d", len(last.Uploads.Active))
	}
	if len(last.Uploads.History) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(last.Uploads.History))
	}
	if last.Uploads.History[0].ID != created.ID {
		t.Errorf("Expected history entry %q, got %q", created.ID, last.Uploads.History[0].ID)
	}
}

func TestChunkMissingUserKey(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := multipartRequest(t, "/api/uploads/u1/chunk", "chunk", "data", map[string]string{
		"chunkIndex": "0",
	})
	w := httptest.NewRecorder()
	h.Chunk(w, withURLParam(req, "id", "u1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingUserKey {
		t.Errorf("Expected error %q, got %q", CodeMissingUserKey, code)
	}
}

func TestChunkInvalidIndex(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := multipartRequest(t, "/api/uploads/u1/chunk", "chunk", "data", map[string]string{
		"userKey":    "someone",
		"chunkIndex": "abc",
	})
	w := httptest.NewRecorder()
	h.Chunk(w, withURLParam(req, "id", "u1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeInvalidChunkIndex {
		t.Errorf("Expected error %q, got %q", CodeInvalidChunkIndex, code)
	}
}

func TestChunkMissingPart(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := multipartRequest(t, "/api/uploads/u1/chunk", "", "", map[string]string{
		"userKey":    "someone",
		"chunkIndex": "0",
	})
	w := httptest.NewRecorder()
	h.Chunk(w, withURLParam(req, "id", "u1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingChunk {
		t.Errorf("Expected error %q, got %q", CodeMissingChunk, code)
	}
}

func TestChunkOutOfRange(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, false)

	w := httptest.NewRecorder()
	h.Chunk(w, chunkRequest(t, created.ID, key, 5, "data"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeChunkOutOfRange {
		t.Errorf("Expected error %q, got %q", CodeChunkOutOfRange, code)
	}
}

func TestChunkUnknownUpload(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)

	w := httptest.NewRecorder()
	h.Chunk(w, chunkRequest(t, "doesnotexist", key, 0, "data"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if code := wireError(t, w); code != CodeUploadNotFound {
		t.Errorf("Expected error %q, got %q", CodeUploadNotFound, code)
	}
}

func TestChunkBodyTooLarge(t *testing.T) {
	manager, _ := newTestManager(t)
	// A deliberately tiny chunk limit so the form overhead dominates.
	h := NewUploadHandler(manager, 16)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 4<<20, 2<<20, false)

	w := httptest.NewRecorder()
	h.Chunk(w, chunkRequest(t, created.ID, key, 0, strings.Repeat("x", 2<<20)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, w.Code)
	}
	if code := wireError(t, w); code != CodeChunkTooLarge {
		t.Errorf("Expected error %q, got %q", CodeChunkTooLarge, code)
	}
}

func TestStatePauseAndResume(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, true)

	req := jsonRequest(t, http.MethodPost, "/api/uploads/"+created.ID+"/state", StateRequest{
		UserKey: key,
		Action:  "pause",
	})
	w := httptest.NewRecorder()
	h.State(w, withURLParam(req, "id", created.ID))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var paused StateResponse
	decodeBody(t, w, &paused)

	if paused.Upload.Status != metadata.StatusPaused {
		t.Errorf("Expected status %q, got %q", metadata.StatusPaused, paused.Upload.Status)
	}
	if len(paused.Uploads.Paused) != 1 || len(paused.Uploads.Active) != 0 {
		t.Errorf("Expected snapshot with 1 paused upload, got %d paused / %d active",
			len(paused.Uploads.Paused), len(paused.Uploads.Active))
	}

	req = jsonRequest(t, http.MethodPost, "/api/uploads/"+created.ID+"/state", StateRequest{
		UserKey: key,
		Action:  "resume",
	})
	w = httptest.NewRecorder()
	h.State(w, withURLParam(req, "id", created.ID))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resumed StateResponse
	decodeBody(t, w, &resumed)

	if resumed.Upload.Status != metadata.StatusActive {
		t.Errorf("Expected status %q, got %q", metadata.StatusActive, resumed.Upload.Status)
	}
	if len(resumed.Uploads.Active) != 1 {
		t.Errorf("Expected snapshot with 1 active upload, got %d", len(resumed.Uploads.Active))
	}
}

func TestStateCancelMovesToHistory(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, true)

	req := jsonRequest(t, http.MethodPost, "/api/uploads/"+created.ID+"/state", StateRequest{
		UserKey: key,
		Action:  "cancel",
	})
	w := httptest.NewRecorder()
	h.State(w, withURLParam(req, "id", created.ID))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp StateResponse
	decodeBody(t, w, &resp)

	if resp.Upload.ID != created.ID {
		t.Errorf("Expected removed upload %q, got %q", created.ID, resp.Upload.ID)
	}
	if len(resp.Uploads.Active) != 0 {
		t.Errorf("Expected no active uploads, got %d", len(resp.Uploads.Active))
	}
	if len(resp.Uploads.History) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(resp.Uploads.History))
	}
	if resp.Uploads.History[0].ID != created.ID {
		t.Errorf("Expected history entry %q, got %q", created.ID, resp.Uploads.History[0].ID)
	}
}

func TestStateForgetLeavesNoTrace(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, false)

	req := jsonRequest(t, http.MethodPost, "/api/uploads/"+created.ID+"/state", StateRequest{
		UserKey: key,
		Action:  "forget",
	})
	w := httptest.NewRecorder()
	h.State(w, withURLParam(req, "id", created.ID))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp StateResponse
	decodeBody(t, w, &resp)

	if len(resp.Uploads.Active) != 0 || len(resp.Uploads.History) != 0 {
		t.Errorf("Expected empty snapshot after forget, got %d active / %d history",
			len(resp.Uploads.Active), len(resp.Uploads.History))
	}
}

func TestStateInvalidAction(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)

	req := jsonRequest(t, http.MethodPost, "/api/uploads/u1/state", StateRequest{
		UserKey: key,
		Action:  "destroy",
	})
	w := httptest.NewRecorder()
	h.State(w, withURLParam(req, "id", "u1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeInvalidAction {
		t.Errorf("Expected error %q, got %q", CodeInvalidAction, code)
	}
}

func TestClearHistory(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)
	key := identifyUser(t, manager)
	created := createUpload(t, manager, key, 10, 6, true)

	// Cancel to seed one history entry.
	req := jsonRequest(t, http.MethodPost, "/api/uploads/"+created.ID+"/state", StateRequest{
		UserKey: key,
		Action:  "cancel",
	})
	w := httptest.NewRecorder()
	h.State(w, withURLParam(req, "id", created.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", w.Code, w.Body.String())
	}

	req = jsonRequest(t, http.MethodDelete, "/api/uploads/history", ClearHistoryRequest{UserKey: key})
	w = httptest.NewRecorder()
	h.ClearHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var snap metadata.Snapshot
	decodeBody(t, w, &snap)

	if len(snap.History) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(snap.History))
	}
}

func TestClearHistoryUnknownUser(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUploadHandler(manager, testMaxChunkSize)

	req := jsonRequest(t, http.MethodDelete, "/api/uploads/history", ClearHistoryRequest{UserKey: "ghost"})
	w := httptest.NewRecorder()
	h.ClearHistory(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if code := wireError(t, w); code != CodeUserNotFound {
		t.Errorf("Expected error %q, got %q", CodeUserNotFound, code)
	}
}
