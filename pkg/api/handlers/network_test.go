package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProbe(t *testing.T) {
	h := NewNetworkHandler(5 << 20)

	req := multipartRequest(t, "/api/network/probe", "sample", strings.Repeat("x", 4096), nil)
	w := httptest.NewRecorder()
	h.Probe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ProbeResponse
	decodeBody(t, w, &resp)

	if resp.Bytes != 4096 {
		t.Errorf("Expected 4096 bytes, got %d", resp.Bytes)
	}
	if resp.ElapsedMs < 0 {
		t.Errorf("Expected non-negative elapsed time, got %d", resp.ElapsedMs)
	}
}

func TestProbeMissingSample(t *testing.T) {
	h := NewNetworkHandler(5 << 20)

	req := multipartRequest(t, "/api/network/probe", "", "", map[string]string{"note": "hello"})
	w := httptest.NewRecorder()
	h.Probe(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingSample {
		t.Errorf("Expected error %q, got %q", CodeMissingSample, code)
	}
}

func TestProbeSampleTooLarge(t *testing.T) {
	h := NewNetworkHandler(16)

	req := multipartRequest(t, "/api/network/probe", "sample", strings.Repeat("x", 2<<20), nil)
	w := httptest.NewRecorder()
	h.Probe(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, w.Code)
	}
	if code := wireError(t, w); code != CodeSampleTooLarge {
		t.Errorf("Expected error %q, got %q", CodeSampleTooLarge, code)
	}
}
