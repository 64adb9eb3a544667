package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dropgate/dropgate/pkg/chunk"
	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/metadata/store/jsonfile"
	"github.com/dropgate/dropgate/pkg/upload"
)

const testMaxChunkSize = 8 << 20

// newTestManager builds a real manager on a throwaway data directory.
func newTestManager(t *testing.T) (*upload.Manager, *chunk.Store) {
	t.Helper()

	dataDir := t.TempDir()
	st, err := jsonfile.Open(filepath.Join(dataDir, "state.json"))
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	chunks, err := chunk.New(chunk.DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("create chunk store: %v", err)
	}

	manager, err := upload.NewManager(upload.Config{
		Store:    st,
		Registry: upload.NewRegistry(),
		Chunks:   chunks,
	})
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	return manager, chunks
}

func identifyUser(t *testing.T, m *upload.Manager) string {
	t.Helper()

	key, _, err := m.IdentifyUser(context.Background(), "")
	if err != nil {
		t.Fatalf("identify user: %v", err)
	}
	return key
}

func createUpload(t *testing.T, m *upload.Manager, userKey string, fileSize, chunkSize int64, persist bool) *metadata.UploadView {
	t.Helper()

	view, err := m.CreateUpload(context.Background(), userKey, upload.CreateRequest{
		FileName:  "data.bin",
		FileSize:  fileSize,
		ChunkSize: chunkSize,
		Persist:   persist,
	})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	return view
}

// withURLParam attaches a chi route parameter to the request so
// handlers can be exercised without the router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()

	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart form request with the given
// string fields and, when fileField is non-empty, one file part
// holding payload.
func multipartRequest(t *testing.T, target, fileField, payload string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "blob")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write([]byte(payload)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// chunkRequest builds a chunk upload request for the given upload.
func chunkRequest(t *testing.T, uploadID, userKey string, index int, payload string) *http.Request {
	t.Helper()

	req := multipartRequest(t, "/api/uploads/"+uploadID+"/chunk", "chunk", payload, map[string]string{
		"userKey":    userKey,
		"chunkIndex": strconv.Itoa(index),
	})
	return withURLParam(req, "id", uploadID)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// wireError extracts the error code from a failure envelope.
func wireError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, w, &resp)
	return resp.Error
}
