package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dropgate/dropgate/pkg/id"
)

func TestIdentifyNewUser(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUserHandler(manager)

	// No body at all: a brand-new client.
	req := httptest.NewRequest(http.MethodPost, "/api/users/identify", nil)
	w := httptest.NewRecorder()
	h.Identify(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp IdentifyResponse
	decodeBody(t, w, &resp)

	if !resp.Created {
		t.Error("Expected created=true for a new user")
	}
	if len(resp.UserKey) != id.UserIDLength {
		t.Errorf("Expected key length %d, got %d", id.UserIDLength, len(resp.UserKey))
	}
	if resp.Uploads.Active == nil || resp.Uploads.Paused == nil || resp.Uploads.History == nil {
		t.Error("Expected non-nil snapshot lists")
	}
}

func TestIdentifyKnownKey(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUserHandler(manager)
	key := identifyUser(t, manager)

	req := jsonRequest(t, http.MethodPost, "/api/users/identify", IdentifyRequest{UserKey: key})
	w := httptest.NewRecorder()
	h.Identify(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp IdentifyResponse
	decodeBody(t, w, &resp)

	if resp.Created {
		t.Error("Expected created=false for a known key")
	}
	if resp.UserKey != key {
		t.Errorf("Expected key %q, got %q", key, resp.UserKey)
	}
}

func TestIdentifyUnknownKeyGetsFreshOne(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUserHandler(manager)

	req := jsonRequest(t, http.MethodPost, "/api/users/identify", IdentifyRequest{UserKey: "NotARealKey"})
	w := httptest.NewRecorder()
	h.Identify(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp IdentifyResponse
	decodeBody(t, w, &resp)

	if !resp.Created {
		t.Error("Expected created=true when the presented key is unknown")
	}
	if resp.UserKey == "NotARealKey" {
		t.Error("Unknown key must not be claimed")
	}
}

func TestIdentifyMalformedBody(t *testing.T) {
	manager, _ := newTestManager(t)
	h := NewUserHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/users/identify", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.Identify(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := wireError(t, w); code != CodeMissingFields {
		t.Errorf("Expected error %q, got %q", CodeMissingFields, code)
	}
}
