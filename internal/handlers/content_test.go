package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/content"
)

func setupContentHandler(t *testing.T) *ContentHandler {
	t.Helper()
	store := storage.NewMockStorage()
	store.AddWorld(&content.World{ID: "harbor", Name: "Harbor"})
	store.AddWorld(&content.World{ID: "peaks", Name: "Peaks"})
	store.AddModule(&content.Module{ID: "relationships"})
	store.AddScenario(&content.Scenario{ID: "smuggler"})
	return NewContentHandler(store, testRegistry(t), testLogger())
}

func getContent(t *testing.T, h *ContentHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestContentLists(t *testing.T) {
	h := setupContentHandler(t)

	tests := []struct {
		path string
		want []string
	}{
		{"/v1/content/worlds", []string{"harbor", "peaks"}},
		{"/v1/content/modules", []string{"relationships"}},
		{"/v1/content/scenarios", []string{"smuggler"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := getContent(t, h, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var resp struct {
				IDs []string `json:"ids"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			sort.Strings(resp.IDs)
			if len(resp.IDs) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", resp.IDs, tt.want)
			}
			for i, id := range tt.want {
				if resp.IDs[i] != id {
					t.Errorf("ids = %v, want %v", resp.IDs, tt.want)
				}
			}
		})
	}
}

func TestContentEntity(t *testing.T) {
	h := setupContentHandler(t)

	w := getContent(t, h, "/v1/content/worlds/harbor")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var world content.World
	if err := json.NewDecoder(w.Body).Decode(&world); err != nil {
		t.Fatal(err)
	}
	if world.Name != "Harbor" {
		t.Errorf("world = %+v", world)
	}

	if w := getContent(t, h, "/v1/content/worlds/atlantis"); w.Code != http.StatusNotFound {
		t.Errorf("missing world status = %d, want 404", w.Code)
	}
}

func TestContentActions(t *testing.T) {
	h := setupContentHandler(t)

	w := getContent(t, h, "/v1/content/actions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Actions []string `json:"actions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Actions) == 0 {
		t.Fatal("no action types listed")
	}
	if !sort.StringsAreSorted(resp.Actions) {
		t.Errorf("actions not sorted: %v", resp.Actions)
	}
}

func TestContentErrors(t *testing.T) {
	h := setupContentHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/content/worlds", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", w.Code)
	}

	if w := getContent(t, h, "/v1/content/spells"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", w.Code)
	}
}
