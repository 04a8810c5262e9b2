package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/action"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *action.Registry {
	t.Helper()
	r := action.NewRegistry(true, testLogger())
	if err := action.RegisterCore(r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestHealthHandler(t *testing.T) {
	store := storage.NewMockStorage()
	handler := NewHealthHandler(store, testRegistry(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Components["storage"] != "healthy" {
		t.Errorf("storage component = %v", resp.Components["storage"])
	}
	if n, ok := resp.Components["actions"].(float64); !ok || n == 0 {
		t.Errorf("actions component = %v, want a non-zero count", resp.Components["actions"])
	}
}

func TestHealthHandlerDegraded(t *testing.T) {
	store := storage.NewMockStorage()
	store.SetPingError(errors.New("redis down"))
	handler := NewHealthHandler(store, testRegistry(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || resp.Components["storage"] != "unhealthy" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthHandlerRegistryWarnings(t *testing.T) {
	r := testRegistry(t)
	r.RegisterModuleOwner("relationships", "relationships")
	r.RegisterModuleOwner("relationships", "rivalry")

	handler := NewHealthHandler(storage.NewMockStorage(), r, testLogger())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Warnings) != 1 {
		t.Errorf("warnings = %v, want one slice conflict", resp.Warnings)
	}
}
