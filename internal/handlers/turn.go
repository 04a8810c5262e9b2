package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/talecraft/turnengine/internal/turn"
)

type TurnHandler struct {
	orchestrator *turn.Orchestrator
	logger       *slog.Logger
}

func NewTurnHandler(orchestrator *turn.Orchestrator, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// ServeHTTP handles POST /v1/turn: one full turn submission. Failure
// reasons map to status codes so callers can render distinct UX without
// parsing error strings.
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
		return
	}

	var req turn.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.orchestrator.Run(r.Context(), &req)
	if err != nil {
		h.logger.Error("Turn orchestration error", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, statusForResult(res), res)
}

func statusForResult(res *turn.Result) int {
	if !res.Failed() {
		return http.StatusOK
	}
	switch res.FailureReason {
	case turn.FailInvalidInput:
		return http.StatusBadRequest
	case turn.FailValidationAfterRetry:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
