package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/talecraft/turnengine/internal/services"
	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/internal/turn"
	"github.com/talecraft/turnengine/pkg/chat"
	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/state"
)

type turnFixture struct {
	handler *TurnHandler
	model   *services.MockModelService
	gs      *state.GameState
}

func setupTurnHandler(t *testing.T) *turnFixture {
	t.Helper()

	store := storage.NewMockStorage()
	store.AddWorld(&content.World{ID: "harbor", Slots: []content.Slot{{Name: "lore", Text: "A fog-bound port."}}})
	store.AddRuleset(&content.Ruleset{ID: "grim", Slots: []content.Slot{{Name: "mechanics", Text: "Dice are rolled."}}})

	gs := state.NewGameState("story-1")
	gs.WorldID = "harbor"
	gs.RulesetID = "grim"
	if err := store.SaveGameState(context.Background(), gs.ID, gs); err != nil {
		t.Fatal(err)
	}

	model := services.NewMockModelService()
	orch := turn.New(store, model, testRegistry(t), turn.Options{
		MaxTokens: 4000,
		Logger:    testLogger(),
	})

	return &turnFixture{
		handler: NewTurnHandler(orch, testLogger()),
		model:   model,
		gs:      gs,
	}
}

func (f *turnFixture) post(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *turnFixture) request() *turn.Request {
	return &turn.Request{
		GameStateID: f.gs.ID,
		WorldID:     "harbor",
		RulesetID:   "grim",
		EntrySlug:   "docks",
		InputKind:   "say",
		InputText:   "Who goes there?",
	}
}

func TestTurnHandlerSuccess(t *testing.T) {
	f := setupTurnHandler(t)
	f.model.EnqueueReply(`{"scn": "docks", "txt": "Fog rolls in."}`)

	w := f.post(t, f.request())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var res turn.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Narration != "Fog rolls in." || res.Scene != "docks" {
		t.Errorf("result = %+v", res)
	}
}

func TestTurnHandlerInvalidInput(t *testing.T) {
	f := setupTurnHandler(t)

	req := f.request()
	req.GameStateID = uuid.New()

	w := f.post(t, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if f.model.CallCount() != 0 {
		t.Errorf("model called %d times for an invalid request", f.model.CallCount())
	}
}

func TestTurnHandlerValidationFailure(t *testing.T) {
	f := setupTurnHandler(t)
	f.model.EnqueueReply(`not json`)
	f.model.EnqueueReply(`still not json`)

	w := f.post(t, f.request())
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}

	var res turn.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.FailureReason != turn.FailValidationAfterRetry {
		t.Errorf("failure reason = %q", res.FailureReason)
	}
}

func TestTurnHandlerInfraFailure(t *testing.T) {
	f := setupTurnHandler(t)
	f.model.InferFunc = func(ctx context.Context, messages []chat.Message) (*chat.Reply, error) {
		return nil, errors.New("connection refused")
	}

	w := f.post(t, f.request())
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestTurnHandlerMethodNotAllowed(t *testing.T) {
	f := setupTurnHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/turn", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestTurnHandlerInvalidBody(t *testing.T) {
	f := setupTurnHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTurnHandlerIdempotencyHeader(t *testing.T) {
	f := setupTurnHandler(t)
	f.model.EnqueueReply(`{"scn": "docks", "txt": "Fog rolls in."}`)

	raw, _ := json.Marshal(f.request())
	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader(raw))
	req.Header.Set("Idempotency-Key", "client-key-1")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var first turn.Result
	if err := json.NewDecoder(w.Body).Decode(&first); err != nil {
		t.Fatal(err)
	}

	// Resubmitting with the same header replays the recorded turn.
	req = httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader(raw))
	req.Header.Set("Idempotency-Key", "client-key-1")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d: %s", w.Code, w.Body.String())
	}

	var second turn.Result
	if err := json.NewDecoder(w.Body).Decode(&second); err != nil {
		t.Fatal(err)
	}
	if !second.Replayed || second.TurnID != first.TurnID {
		t.Errorf("replay = %+v, want the original turn replayed", second)
	}
	if f.model.CallCount() != 1 {
		t.Errorf("model called %d times, want 1", f.model.CallCount())
	}
}
