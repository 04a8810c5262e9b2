package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/state"
)

type GameStateHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewGameStateHandler(storage storage.Storage, logger *slog.Logger) *GameStateHandler {
	return &GameStateHandler{
		storage: storage,
		logger:  logger,
	}
}

// CreateGameStateRequest defines the request body for creating a new
// game state.
type CreateGameStateRequest struct {
	StoryID    string   `json:"story_id"`
	WorldID    string   `json:"world_id"`
	RulesetID  string   `json:"ruleset_id"`
	ScenarioID string   `json:"scenario_id,omitempty"`
	ModuleIDs  []string `json:"module_ids,omitempty"`
	NPCIDs     []string `json:"npc_ids,omitempty"`
	Scene      string   `json:"scene,omitempty"`
}

// ServeHTTP handles HTTP requests for game state operations
// Routes:
//
//	POST   /v1/gamestate                         - Create new game state
//	GET    /v1/gamestate/{id}                    - Read game state by ID
//	DELETE /v1/gamestate/{id}                    - Delete game state by ID
//	GET    /v1/gamestate/{id}/modules            - List attached modules
//	PUT    /v1/gamestate/{id}/modules/{moduleID} - Attach a module
//	DELETE /v1/gamestate/{id}/modules/{moduleID} - Detach a module
func (h *GameStateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/gamestate"), "/")

	if path == "" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid game state ID", "id", parts[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid game state ID format")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleRead(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, id)
	case len(parts) >= 2 && parts[1] == "modules":
		h.handleModules(w, r, id, parts[2:])
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *GameStateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateGameStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WorldID == "" || req.RulesetID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "world_id and ruleset_id are required")
		return
	}

	gs := state.NewGameState(req.StoryID)
	gs.WorldID = req.WorldID
	gs.RulesetID = req.RulesetID
	gs.ScenarioID = req.ScenarioID
	gs.ModuleIDs = req.ModuleIDs
	gs.NPCIDs = req.NPCIDs
	gs.Scene = req.Scene

	if err := h.storage.SaveGameState(r.Context(), gs.ID, gs); err != nil {
		h.logger.Error("Failed to create gamestate", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create game state")
		return
	}

	// Modules listed at creation are attached immediately so their acts
	// validate from the first turn.
	for _, moduleID := range req.ModuleIDs {
		if err := h.storage.AttachModule(r.Context(), gs.StoryID, moduleID); err != nil {
			h.logger.Warn("Failed to attach module at creation", "module_id", moduleID, "error", err)
		}
	}

	h.logger.Info("Game state created", "uuid", gs.ID, "story_id", gs.StoryID)
	writeJSON(w, h.logger, http.StatusCreated, gs)
}

func (h *GameStateHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	gs, err := h.storage.LoadGameState(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load gamestate", "uuid", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		writeError(w, h.logger, http.StatusNotFound, "Game state not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, gs)
}

func (h *GameStateHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.storage.DeleteGameState(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete gamestate", "uuid", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete game state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GameStateHandler) handleModules(w http.ResponseWriter, r *http.Request, id uuid.UUID, rest []string) {
	gs, err := h.storage.LoadGameState(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load game state")
		return
	}
	if gs == nil {
		writeError(w, h.logger, http.StatusNotFound, "Game state not found")
		return
	}

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
			return
		}
		modules, err := h.storage.ListAttachedModules(r.Context(), gs.StoryID)
		if err != nil {
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to list attached modules")
			return
		}
		writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"modules": modules})
		return
	}

	moduleID := rest[0]
	switch r.Method {
	case http.MethodPut:
		if _, err := h.storage.GetModule(r.Context(), moduleID); err != nil {
			writeError(w, h.logger, http.StatusNotFound, "Module not found")
			return
		}
		if err := h.storage.AttachModule(r.Context(), gs.StoryID, moduleID); err != nil {
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to attach module")
			return
		}
		h.logger.Info("Module attached", "story_id", gs.StoryID, "module_id", moduleID)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := h.storage.DetachModule(r.Context(), gs.StoryID, moduleID); err != nil {
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to detach module")
			return
		}
		h.logger.Info("Module detached", "story_id", gs.StoryID, "module_id", moduleID)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: PUT, DELETE")
	}
}
