package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/action"
)

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
	Warnings   []string               `json:"warnings,omitempty"`
}

type HealthHandler struct {
	storage  storage.Storage
	registry *action.Registry
	logger   *slog.Logger
}

func NewHealthHandler(storage storage.Storage, registry *action.Registry, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage:  storage,
		registry: registry,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "turnengine",
		Components: map[string]interface{}{
			"storage": "healthy",
			"actions": len(h.registry.Types()),
		},
		Warnings: h.registry.HealthWarnings(),
	}

	code := http.StatusOK
	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed", "error", err)
		response.Status = "degraded"
		response.Components["storage"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, h.logger, code, response)
}
