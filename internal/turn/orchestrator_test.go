package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talecraft/turnengine/internal/services"
	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/action"
	"github.com/talecraft/turnengine/pkg/chat"
	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/state"
)

const validReply = `{"scn": "docks", "txt": "Fog rolls in over the harbor."}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *storage.MockStorage
	model *services.MockModelService
	orch  *Orchestrator
	gs    *state.GameState
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMockStorage()
	store.AddWorld(&content.World{ID: "harbor", Slots: []content.Slot{{Name: "lore", Text: "A fog-bound port."}}})
	store.AddRuleset(&content.Ruleset{ID: "grim", Slots: []content.Slot{{Name: "mechanics", Text: "Dice are rolled."}}})
	store.AddModule(&content.Module{
		ID:       "relationships",
		Defaults: map[string]interface{}{"soft_cap": 8.0},
	})

	registry := action.NewRegistry(true, testLogger())
	require.NoError(t, action.RegisterCore(registry))
	require.NoError(t, action.RegisterRelationshipsModule(registry, state.DefaultRelationshipCaps()))

	gs := state.NewGameState("story-1")
	gs.WorldID = "harbor"
	gs.RulesetID = "grim"
	require.NoError(t, store.SaveGameState(context.Background(), gs.ID, gs))
	require.NoError(t, store.AttachModule(context.Background(), "story-1", "relationships"))

	model := services.NewMockModelService()
	orch := New(store, model, registry, Options{
		MaxTokens: 4000,
		Logger:    testLogger(),
	})

	return &fixture{store: store, model: model, orch: orch, gs: gs}
}

func (f *fixture) request() *Request {
	return &Request{
		GameStateID: f.gs.ID,
		WorldID:     "harbor",
		RulesetID:   "grim",
		EntrySlug:   "docks",
		ModuleIDs:   []string{"relationships"},
		InputKind:   "say",
		InputText:   "Who goes there?",
	}
}

func TestRunSuccessFirstAttempt(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(validReply)

	res, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.False(t, res.Failed())
	assert.False(t, res.Retried)
	assert.Equal(t, "docks", res.Scene)
	assert.Equal(t, "Fog rolls in over the harbor.", res.Narration)
	assert.Equal(t, 1, f.model.CallCount())
	require.NotNil(t, res.GameState)
	assert.Equal(t, 1, res.GameState.TurnCounter)
	require.NotNil(t, res.Budget)
	require.NotNil(t, res.Metadata)

	// The new snapshot was persisted.
	saved, err := f.store.LoadGameState(context.Background(), f.gs.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.TurnCounter)

	// An audit record exists for the turn.
	audit, err := f.store.LoadTurnAudit(context.Background(), res.TurnID)
	require.NoError(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, string(StateDone), audit.Status)
}

func TestRunPromptShape(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(validReply)

	_, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)

	require.Len(t, f.model.InferCalls, 1)
	messages := f.model.InferCalls[0]
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleSystem, messages[0].Role)
	assert.Equal(t, chat.RoleUser, messages[1].Role)
	assert.Contains(t, messages[0].Content, "## World: lore")
	assert.Contains(t, messages[0].Content, "## Ruleset: mechanics")
	assert.NotContains(t, messages[0].Content, "Who goes there?")
	assert.Equal(t, "Who goes there?", messages[1].Content)
}

func TestRunRetryRepairsInvalidReply(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(`{"txt": "missing scene"}`)
	f.model.EnqueueReply(validReply)

	res, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.Retried)
	assert.Empty(t, res.Violations, "violations clear once the retry passes")
	assert.Equal(t, 2, f.model.CallCount())

	// The retry conversation carries the failed reply and a repair hint.
	retry := f.model.InferCalls[1]
	require.Len(t, retry, 4)
	assert.Equal(t, chat.RoleAssistant, retry[2].Role)
	assert.Equal(t, `{"txt": "missing scene"}`, retry[2].Content)
	assert.Equal(t, chat.RoleUser, retry[3].Role)
	assert.Contains(t, retry[3].Content, "failed validation")
	assert.Contains(t, retry[3].Content, `"scn"`)
}

func TestRunFailsAfterSecondInvalidReply(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(`{"txt": "missing scene"}`)
	f.model.EnqueueReply(`not json at all`)

	res, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)

	assert.True(t, res.Failed())
	assert.Equal(t, FailValidationAfterRetry, res.FailureReason)
	assert.True(t, res.Retried)
	assert.NotEmpty(t, res.Violations)
	assert.Equal(t, 2, f.model.CallCount(), "hard cap of one retry")
	assert.Nil(t, res.GameState)

	// No state was committed.
	saved, err := f.store.LoadGameState(context.Background(), f.gs.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, saved.TurnCounter)
}

func TestRunActsApplied(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(`{
		"scn": "tavern",
		"txt": "You push through the crowd.",
		"acts": [
			{"type": "scene.change", "data": {"to": "tavern"}},
			{"type": "flag.set", "data": {"name": "met_captain", "value": true}},
			{"type": "rel.delta", "data": {"npc": "elara", "stat": "trust", "delta": 2}},
			{"type": "mood.set", "data": {"key": "elara"}}
		]
	}`)

	res, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	require.NotNil(t, res.GameState)
	assert.Equal(t, "tavern", res.GameState.Scene)
	assert.True(t, res.GameState.Flags["met_captain"])
	assert.Equal(t, 2.0, res.GameState.RelationshipStat("elara", "trust"))

	// The unregistered act is a recorded violation, not a turn failure.
	require.NotNil(t, res.Summary)
	require.Len(t, res.Summary.Violations, 1)
	assert.Equal(t, action.CodeUnknownAction, res.Summary.Violations[0].Code)
	assert.Equal(t, "mood.set", res.Summary.Violations[0].ActType)
}

func TestRunInvalidInput(t *testing.T) {
	t.Run("gamestate missing", func(t *testing.T) {
		f := setup(t)
		req := f.request()
		req.GameStateID = uuid.New()

		res, err := f.orch.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, FailInvalidInput, res.FailureReason)
		assert.Equal(t, 0, f.model.CallCount())
	})

	t.Run("story ended", func(t *testing.T) {
		f := setup(t)
		f.gs.IsEnded = true
		require.NoError(t, f.store.SaveGameState(context.Background(), f.gs.ID, f.gs))

		res, err := f.orch.Run(context.Background(), f.request())
		require.NoError(t, err)
		assert.Equal(t, FailInvalidInput, res.FailureReason)
	})

	t.Run("unknown world", func(t *testing.T) {
		f := setup(t)
		req := f.request()
		req.WorldID = "atlantis"

		res, err := f.orch.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, FailInvalidInput, res.FailureReason)
	})

	t.Run("missing entry slug", func(t *testing.T) {
		f := setup(t)
		req := f.request()
		req.EntrySlug = ""

		res, err := f.orch.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, FailInvalidInput, res.FailureReason)
	})
}

func TestRunInferFailure(t *testing.T) {
	f := setup(t)
	f.model.InferFunc = func(ctx context.Context, messages []chat.Message) (*chat.Reply, error) {
		return nil, errors.New("connection refused")
	}

	res, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)

	assert.True(t, res.Failed())
	assert.Equal(t, FailInfra, res.FailureReason)
}

func TestRunIdempotentReplay(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(validReply)

	req := f.request()
	req.IdempotencyKey = "client-key-1"

	first, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateDone, first.State)

	// The duplicate submission replays the persisted outcome without a
	// second model call.
	second, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TurnID, second.TurnID)
	assert.Equal(t, StateDone, second.State)
	assert.Equal(t, 1, f.model.CallCount())
	require.NotNil(t, second.GameState)
	assert.Equal(t, 1, second.GameState.TurnCounter)
}

func TestRunDistinctKeysRunIndependently(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(validReply)
	f.model.EnqueueReply(validReply)

	req := f.request()
	req.IdempotencyKey = "key-a"
	_, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	req2 := f.request()
	req2.IdempotencyKey = "key-b"
	second, err := f.orch.Run(context.Background(), req2)
	require.NoError(t, err)

	assert.False(t, second.Replayed)
	assert.Equal(t, 2, f.model.CallCount())
}

func TestRunNilRequest(t *testing.T) {
	f := setup(t)
	_, err := f.orch.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunEmptyInputUsesFallbackPrompt(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(validReply)

	req := f.request()
	req.InputText = ""
	_, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.model.InferCalls, 1)
	messages := f.model.InferCalls[0]
	assert.Equal(t, "Continue the story.", messages[len(messages)-1].Content)
}

func TestRunFailureAudited(t *testing.T) {
	f := setup(t)
	f.model.EnqueueReply(`bogus`)
	f.model.EnqueueReply(`bogus`)

	res, err := f.orch.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.True(t, res.Failed())

	audit, err := f.store.LoadTurnAudit(context.Background(), res.TurnID)
	require.NoError(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, string(StateFailed), audit.Status)
	assert.Equal(t, FailValidationAfterRetry, audit.FailureReason)
	assert.True(t, audit.Retried)
}
