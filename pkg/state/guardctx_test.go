package state

import "testing"

func TestBuildGuardContext(t *testing.T) {
	gs := NewGameState("s")
	gs.Scene = "docks"
	gs.TurnCounter = 7
	gs.Hot = map[string]interface{}{"weather": "fog"}
	gs.SetFlag("met_captain", true)
	gs.AddResource("gold", 12)
	gs.SetObjective("find_map", ObjectiveActive)
	gs.Slice(RelationshipSlice)["elara"] = map[string]interface{}{"trust": 5.0}

	ctx := gs.BuildGuardContext()

	if ctx["scene"] != "docks" {
		t.Errorf("scene = %v", ctx["scene"])
	}
	if ctx["time_band"] != gs.TimeBand {
		t.Errorf("time_band = %v", ctx["time_band"])
	}
	if ctx["turn_counter"] != 7 {
		t.Errorf("turn_counter = %v", ctx["turn_counter"])
	}
	if ctx["weather"] != "fog" {
		t.Errorf("hot var missing: %v", ctx["weather"])
	}
	if ctx["met_captain"] != true {
		t.Errorf("flag missing: %v", ctx["met_captain"])
	}
	if ctx["gold"] != 12.0 {
		t.Errorf("resource missing: %v", ctx["gold"])
	}
	if ctx["find_map"] != ObjectiveActive {
		t.Errorf("objective missing: %v", ctx["find_map"])
	}
	if ctx["elara.trust"] != 5.0 {
		t.Errorf("qualified stat missing: %v", ctx["elara.trust"])
	}
}

func TestBuildGuardContextSingleNPCShorthand(t *testing.T) {
	gs := NewGameState("s")
	gs.Slice(RelationshipSlice)["elara"] = map[string]interface{}{"trust": 5.0}

	ctx := gs.BuildGuardContext()
	if ctx["trust"] != 5.0 {
		t.Errorf("single-NPC shorthand missing: trust = %v", ctx["trust"])
	}

	// A second tracked NPC makes the bare name ambiguous; only qualified
	// names remain.
	gs.Slice(RelationshipSlice)["marlow"] = map[string]interface{}{"trust": 2.0}
	ctx = gs.BuildGuardContext()
	if _, ok := ctx["trust"]; ok {
		t.Error("bare stat name present with two tracked NPCs")
	}
	if ctx["elara.trust"] != 5.0 || ctx["marlow.trust"] != 2.0 {
		t.Error("qualified stats missing with two tracked NPCs")
	}
}
