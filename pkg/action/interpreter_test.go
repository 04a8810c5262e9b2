package action

import (
	"context"
	"fmt"
	"testing"

	"github.com/talecraft/turnengine/pkg/state"
)

func interpreterFixture(t *testing.T, allowUnknown bool) *Interpreter {
	t.Helper()
	r := NewRegistry(true, nil)
	if err := RegisterCore(r); err != nil {
		t.Fatal(err)
	}
	if err := RegisterRelationshipsModule(r, state.DefaultRelationshipCaps()); err != nil {
		t.Fatal(err)
	}
	attachments := &attachStub{attached: map[string]bool{"story-1:relationships": true}}
	return NewInterpreter(r, NewValidator(r, attachments, allowUnknown, nil), nil)
}

func TestApplyActsSequential(t *testing.T) {
	i := interpreterFixture(t, false)
	gs := state.NewGameState("story-1")
	gs.Scene = "docks"

	acts := []Act{
		{Type: TypeFlagSet, Data: map[string]interface{}{"name": "met_captain", "value": true}},
		{Type: TypeResourceDelta, Data: map[string]interface{}{"name": "gold", "delta": 12.0}},
		{Type: TypeResourceDelta, Data: map[string]interface{}{"name": "gold", "delta": -2.0}},
		{Type: TypeSceneChange, Data: map[string]interface{}{"to": "tavern"}},
		{Type: TypeTimeAdvance, Data: map[string]interface{}{"ticks": 4.0}},
		{Type: TypeRelationshipDelta, Data: map[string]interface{}{"npc": "elara", "stat": "trust", "delta": 2.0}},
	}

	next, sum, err := i.ApplyActs(context.Background(), gs, acts)
	if err != nil {
		t.Fatalf("ApplyActs: %v", err)
	}

	if !next.Flags["met_captain"] {
		t.Error("flag not set")
	}
	// Later acts see earlier effects: the second delta applies on top of
	// the first.
	if next.Resources["gold"] != 10 {
		t.Errorf("gold = %v, want 10", next.Resources["gold"])
	}
	if next.Scene != "tavern" {
		t.Errorf("scene = %q, want tavern", next.Scene)
	}
	if next.TimeBand != "morning" {
		t.Errorf("time band = %q, want morning", next.TimeBand)
	}
	if next.RelationshipStat("elara", "trust") != 2 {
		t.Errorf("trust = %v, want 2", next.RelationshipStat("elara", "trust"))
	}

	if len(sum.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", sum.Violations)
	}
	if sum.SceneChange == nil || sum.SceneChange.From != "docks" || sum.SceneChange.To != "tavern" {
		t.Errorf("scene change summary = %+v", sum.SceneChange)
	}
	if len(sum.Resources) != 2 {
		t.Errorf("resource changes = %d, want 2", len(sum.Resources))
	}
	if len(sum.Relationships) != 1 {
		t.Errorf("relationship changes = %d, want 1", len(sum.Relationships))
	}
}

func TestApplyActsLeavesOriginalUntouched(t *testing.T) {
	i := interpreterFixture(t, false)
	gs := state.NewGameState("story-1")
	gs.Scene = "docks"

	next, _, err := i.ApplyActs(context.Background(), gs, []Act{
		{Type: TypeSceneChange, Data: map[string]interface{}{"to": "tavern"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gs.Scene != "docks" {
		t.Error("input snapshot was mutated")
	}
	if next.Scene != "tavern" {
		t.Error("returned snapshot missing the change")
	}
	if next == gs {
		t.Error("interpreter returned the input pointer")
	}
}

func TestApplyActsRecordsViolationsAndContinues(t *testing.T) {
	i := interpreterFixture(t, false)
	gs := state.NewGameState("story-1")

	acts := []Act{
		{Type: "mood.set", Data: map[string]interface{}{}},                                // unknown
		{Type: TypeFlagSet, Data: map[string]interface{}{"name": "met_captain"}},          // schema
		{Type: TypeFlagSet, Data: map[string]interface{}{"name": "safe", "value": true}},  // fine
		{Type: TypeResourceDelta, Data: map[string]interface{}{"name": "x", "delta": 1.0}}, // fine
	}

	next, sum, err := i.ApplyActs(context.Background(), gs, acts)
	if err != nil {
		t.Fatal(err)
	}

	if len(sum.Violations) != 2 {
		t.Fatalf("violations = %+v, want 2", sum.Violations)
	}
	if sum.Violations[0].Code != CodeUnknownAction || sum.Violations[0].ActIndex != 0 {
		t.Errorf("first violation = %+v", sum.Violations[0])
	}
	if sum.Violations[1].Code != CodeSchemaInvalid || sum.Violations[1].ActIndex != 1 {
		t.Errorf("second violation = %+v", sum.Violations[1])
	}
	if sum.Violations[1].Detail == "" {
		t.Error("schema violation carries no field detail")
	}

	// The valid tail of the batch still applied.
	if !next.Flags["safe"] || next.Resources["x"] != 1 {
		t.Error("acts after a violation were not applied")
	}
}

func TestApplyActsSkipsAllowedUnregistered(t *testing.T) {
	i := interpreterFixture(t, true)
	gs := state.NewGameState("story-1")

	_, sum, err := i.ApplyActs(context.Background(), gs, []Act{
		{Type: "future.act", Data: map[string]interface{}{}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(sum.Violations) != 1 || sum.Violations[0].Code != CodeSkippedAllow {
		t.Errorf("violations = %+v, want one skipped_unregistered", sum.Violations)
	}
}

func TestApplyActsReducerFailure(t *testing.T) {
	r := NewRegistry(true, nil)
	if err := RegisterCore(r); err != nil {
		t.Fatal(err)
	}
	err := r.Register(Registration{
		Type:   "boom.act",
		Owner:  OwnerCore,
		Schema: &Schema{},
		Apply: func(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
			return fmt.Errorf("reducer exploded")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	i := NewInterpreter(r, NewValidator(r, &attachStub{}, false, nil), nil)
	gs := state.NewGameState("story-1")

	_, sum, err := i.ApplyActs(context.Background(), gs, []Act{
		{Type: "boom.act", Data: map[string]interface{}{}},
		{Type: TypeFlagSet, Data: map[string]interface{}{"name": "after", "value": true}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(sum.Violations) != 1 || sum.Violations[0].Code != CodeApplyFailed {
		t.Fatalf("violations = %+v, want one apply_failed", sum.Violations)
	}
	if sum.Violations[0].Detail != "reducer exploded" {
		t.Errorf("detail = %q", sum.Violations[0].Detail)
	}
}

func TestApplyActsEmptyBatch(t *testing.T) {
	i := interpreterFixture(t, false)
	gs := state.NewGameState("story-1")

	next, sum, err := i.ApplyActs(context.Background(), gs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || len(sum.Violations) != 0 {
		t.Error("empty batch should return a clean copy")
	}
}

func TestMergeReducer(t *testing.T) {
	apply := MergeReducer("moods")
	gs := state.NewGameState("s")
	sum := &state.ChangeSummary{}

	if err := apply(gs, map[string]interface{}{"key": "elara", "mood": "sly"}, sum); err != nil {
		t.Fatal(err)
	}
	if err := apply(gs, map[string]interface{}{"key": "elara", "intensity": 3.0}, sum); err != nil {
		t.Fatal(err)
	}

	entry := gs.Slices["moods"]["elara"].(map[string]interface{})
	if entry["mood"] != "sly" || entry["intensity"] != 3.0 {
		t.Errorf("entry = %+v, want merged fields", entry)
	}
	if _, ok := entry["key"]; ok {
		t.Error("key field leaked into the merged entry")
	}

	if err := apply(gs, map[string]interface{}{"mood": "sly"}, sum); err == nil {
		t.Error("missing key accepted")
	}
}

func TestCounterReducer(t *testing.T) {
	apply := CounterReducer("tally")
	gs := state.NewGameState("s")
	sum := &state.ChangeSummary{}

	if err := apply(gs, map[string]interface{}{"key": "rumors", "delta": 2.0}, sum); err != nil {
		t.Fatal(err)
	}
	if err := apply(gs, map[string]interface{}{"key": "rumors", "delta": -0.5}, sum); err != nil {
		t.Fatal(err)
	}

	if got := gs.Slices["tally"]["rumors"]; got != 1.5 {
		t.Errorf("counter = %v, want 1.5", got)
	}

	if err := apply(gs, map[string]interface{}{"key": "rumors"}, sum); err == nil {
		t.Error("missing delta accepted")
	}
	if err := apply(gs, map[string]interface{}{"delta": 1.0}, sum); err == nil {
		t.Error("missing key accepted")
	}
}
