package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/action"
)

type ContentHandler struct {
	storage  storage.Storage
	registry *action.Registry
	logger   *slog.Logger
}

func NewContentHandler(storage storage.Storage, registry *action.Registry, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		storage:  storage,
		registry: registry,
		logger:   logger,
	}
}

// ServeHTTP handles read-only content pack lookups
// Routes:
//
//	GET /v1/content/worlds           - List world IDs
//	GET /v1/content/worlds/{id}      - Read one world
//	GET /v1/content/modules          - List module IDs
//	GET /v1/content/modules/{id}     - Read one module
//	GET /v1/content/scenarios        - List scenario IDs
//	GET /v1/content/scenarios/{id}   - Read one scenario
//	GET /v1/content/actions          - List registered action types
func (h *ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/content"), "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "actions":
		writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"actions": h.registry.Types()})

	case path == "worlds":
		h.list(w, r, func() ([]string, error) { return h.storage.ListWorlds(r.Context()) })
	case path == "modules":
		h.list(w, r, func() ([]string, error) { return h.storage.ListModules(r.Context()) })
	case path == "scenarios":
		h.list(w, r, func() ([]string, error) { return h.storage.ListScenarios(r.Context()) })

	case len(parts) == 2 && parts[0] == "worlds":
		h.entity(w, func() (interface{}, error) { return h.storage.GetWorld(r.Context(), parts[1]) })
	case len(parts) == 2 && parts[0] == "modules":
		h.entity(w, func() (interface{}, error) { return h.storage.GetModule(r.Context(), parts[1]) })
	case len(parts) == 2 && parts[0] == "scenarios":
		h.entity(w, func() (interface{}, error) { return h.storage.GetScenario(r.Context(), parts[1]) })

	default:
		writeError(w, h.logger, http.StatusNotFound, "Unknown content path")
	}
}

func (h *ContentHandler) list(w http.ResponseWriter, r *http.Request, fn func() ([]string, error)) {
	ids, err := fn()
	if err != nil {
		h.logger.Error("Failed to list content", "path", r.URL.Path, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list content")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"ids": ids})
}

func (h *ContentHandler) entity(w http.ResponseWriter, fn func() (interface{}, error)) {
	v, err := fn()
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, v)
}
