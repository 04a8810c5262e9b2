package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/talecraft/turnengine/pkg/budget"
	"github.com/talecraft/turnengine/pkg/state"
)

// setupTestRedis creates a miniredis-backed store over a temp content
// directory.
func setupTestRedis(t *testing.T) (*RedisStorage, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	dataDir := t.TempDir()
	store := NewRedisStorage("redis://"+mr.Addr(), dataDir, testLogger())
	t.Cleanup(func() { _ = store.Close() })
	return store, dataDir
}

func writeContentFile(t *testing.T, dataDir, kind, id string, v interface{}) {
	t.Helper()
	dir := filepath.Join(dataDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGameStateRoundtrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	gs := state.NewGameState("story-1")
	gs.Scene = "docks"
	gs.SetFlag("met_captain", true)
	gs.Slice(state.RelationshipSlice)["elara"] = map[string]interface{}{"trust": 5.0}

	if err := store.SaveGameState(ctx, gs.ID, gs); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadGameState(ctx, gs.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("loaded gamestate is nil")
	}
	if loaded.Scene != "docks" || !loaded.Flags["met_captain"] {
		t.Errorf("roundtrip lost data: %+v", loaded)
	}
	if loaded.RelationshipStat("elara", "trust") != 5 {
		t.Error("relationship slice lost in roundtrip")
	}
}

func TestLoadGameStateNotFound(t *testing.T) {
	store, _ := setupTestRedis(t)

	gs, err := store.LoadGameState(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gs != nil {
		t.Error("missing gamestate should load as nil, nil")
	}
}

func TestDeleteGameState(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	gs := state.NewGameState("story-1")
	if err := store.SaveGameState(ctx, gs.ID, gs); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteGameState(ctx, gs.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	loaded, err := store.LoadGameState(ctx, gs.ID)
	if err != nil || loaded != nil {
		t.Errorf("gamestate survived deletion: (%v, %v)", loaded, err)
	}
}

func TestModuleAttachment(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	attached, err := store.ModuleAttached(ctx, "story-1", "relationships")
	if err != nil || attached {
		t.Errorf("fresh story reports attached module: (%v, %v)", attached, err)
	}

	if err := store.AttachModule(ctx, "story-1", "relationships"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := store.AttachModule(ctx, "story-1", "rumors"); err != nil {
		t.Fatal(err)
	}

	attached, err = store.ModuleAttached(ctx, "story-1", "relationships")
	if err != nil || !attached {
		t.Errorf("attached module not reported: (%v, %v)", attached, err)
	}

	modules, err := store.ListAttachedModules(ctx, "story-1")
	if err != nil || len(modules) != 2 {
		t.Errorf("ListAttachedModules = (%v, %v), want 2 entries", modules, err)
	}

	if err := store.DetachModule(ctx, "story-1", "rumors"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	attached, _ = store.ModuleAttached(ctx, "story-1", "rumors")
	if attached {
		t.Error("detached module still reported attached")
	}

	// Attachment is per story.
	attached, _ = store.ModuleAttached(ctx, "story-2", "relationships")
	if attached {
		t.Error("attachment leaked across stories")
	}
}

func TestClaimTurnKey(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	holder, won, err := store.ClaimTurnKey(ctx, "key-1", "turn-a")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !won || holder != "turn-a" {
		t.Errorf("first claim = (%q, %v), want won by turn-a", holder, won)
	}

	holder, won, err = store.ClaimTurnKey(ctx, "key-1", "turn-b")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won || holder != "turn-a" {
		t.Errorf("second claim = (%q, %v), want lost to turn-a", holder, won)
	}

	// A different key is independent.
	_, won, err = store.ClaimTurnKey(ctx, "key-2", "turn-b")
	if err != nil || !won {
		t.Errorf("independent key claim = (%v, %v), want won", won, err)
	}
}

func TestModuleParams(t *testing.T) {
	store, dataDir := setupTestRedis(t)
	ctx := context.Background()

	writeContentFile(t, dataDir, "modules", "relationships", map[string]interface{}{
		"name":     "Relationships",
		"defaults": map[string]interface{}{"soft_cap": 8.0, "hard_cap": 10.0},
	})

	params, usedDefault, err := store.GetModuleParams(ctx, "story-1", "relationships")
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if !usedDefault || params["soft_cap"] != 8.0 {
		t.Errorf("defaults = (%v, %v)", params, usedDefault)
	}

	if err := store.SetModuleParams(ctx, "story-1", "relationships", map[string]interface{}{
		"soft_cap": 6.0, "hard_cap": 9.0,
	}); err != nil {
		t.Fatalf("set params: %v", err)
	}

	params, usedDefault, err = store.GetModuleParams(ctx, "story-1", "relationships")
	if err != nil {
		t.Fatal(err)
	}
	if usedDefault {
		t.Error("fully overridden params still report default use")
	}
	if params["soft_cap"] != 6.0 || params["hard_cap"] != 9.0 {
		t.Errorf("merged params = %v", params)
	}

	// Another story still sees the defaults.
	params, usedDefault, err = store.GetModuleParams(ctx, "story-2", "relationships")
	if err != nil || !usedDefault || params["soft_cap"] != 8.0 {
		t.Errorf("story-2 params = (%v, %v, %v), want defaults", params, usedDefault, err)
	}
}

func TestBudgetReportRoundtrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	rep := &budget.Report{
		Version:      budget.ReportVersion,
		TokensBefore: 300,
		TokensAfter:  200,
		Trims:        []budget.Trim{{Key: "input", RemovedChars: 400, RemovedTokens: 100}},
	}
	if err := store.SaveBudgetReport(ctx, "turn-1", rep); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadBudgetReport(ctx, "turn-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.TokensAfter != 200 || len(loaded.Trims) != 1 {
		t.Errorf("roundtrip = %+v", loaded)
	}

	missing, err := store.LoadBudgetReport(ctx, "turn-none")
	if err != nil || missing != nil {
		t.Errorf("missing report = (%v, %v), want nil, nil", missing, err)
	}
}

func TestTurnAuditRoundtrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	audit := &TurnAudit{
		TurnID:      "turn-1",
		GameStateID: uuid.New(),
		StoryID:     "story-1",
		Status:      "DONE",
		Retried:     true,
		RawReply:    `{"scn": "docks", "txt": "Fog."}`,
		Summary: &state.ChangeSummary{
			FlagsSet: []state.FlagChange{{Name: "met_captain", Value: true}},
		},
		DurationMs: 420,
	}
	if err := store.SaveTurnAudit(ctx, audit); err != nil {
		t.Fatalf("save: %v", err)
	}
	if audit.CreatedAt.IsZero() {
		t.Error("save did not stamp CreatedAt")
	}

	loaded, err := store.LoadTurnAudit(ctx, "turn-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.Status != "DONE" || !loaded.Retried {
		t.Errorf("roundtrip = %+v", loaded)
	}
	if loaded.Summary == nil || len(loaded.Summary.FlagsSet) != 1 {
		t.Error("summary lost in roundtrip")
	}

	missing, err := store.LoadTurnAudit(ctx, "turn-none")
	if err != nil || missing != nil {
		t.Errorf("missing audit = (%v, %v), want nil, nil", missing, err)
	}
}

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStorage("redis://"+mr.Addr(), t.TempDir(), testLogger())

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("ping against a live server: %v", err)
	}

	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("ping against a closed server succeeded")
	}
}
