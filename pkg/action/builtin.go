package action

import (
	"fmt"

	"github.com/talecraft/turnengine/pkg/state"
)

// Core action types.
const (
	TypeSceneChange   = "scene.change"
	TypeFlagSet       = "flag.set"
	TypeResourceDelta = "resource.delta"
	TypeObjectiveSet  = "objective.set"
	TypeTimeAdvance   = "time.advance"
	TypeMemoryAdd     = "memory.add"
	TypeMemoryPin     = "memory.pin"

	// TypeRelationshipDelta belongs to the relationships module, not
	// core; it is here because its reducer is built in.
	TypeRelationshipDelta = "rel.delta"
)

// RegisterCore populates a registry with the engine's built-in actions.
func RegisterCore(r *Registry) error {
	regs := []Registration{
		{
			Type:  TypeSceneChange,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields:   map[string]Field{"to": {Type: "string", MinLength: 1}},
				Required: []string{"to"},
			},
			Apply: applySceneChange,
		},
		{
			Type:  TypeFlagSet,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields: map[string]Field{
					"name":  {Type: "string", MinLength: 1},
					"value": {Type: "boolean"},
				},
				Required: []string{"name", "value"},
			},
			Apply: applyFlagSet,
		},
		{
			Type:  TypeResourceDelta,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields: map[string]Field{
					"name":  {Type: "string", MinLength: 1},
					"delta": {Type: "number"},
				},
				Required: []string{"name", "delta"},
			},
			Apply: applyResourceDelta,
		},
		{
			Type:  TypeObjectiveSet,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields: map[string]Field{
					"id": {Type: "string", MinLength: 1},
					"status": {Type: "string", Enum: []string{
						state.ObjectiveInactive,
						state.ObjectiveActive,
						state.ObjectiveCompleted,
						state.ObjectiveFailed,
					}},
				},
				Required: []string{"id", "status"},
			},
			Apply: applyObjectiveSet,
		},
		{
			Type:  TypeTimeAdvance,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields:   map[string]Field{"ticks": {Type: "integer", Min: floatPtr(0), Max: floatPtr(24)}},
				Required: []string{"ticks"},
			},
			Apply: applyTimeAdvance,
		},
		{
			Type:  TypeMemoryAdd,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields: map[string]Field{
					"key":      {Type: "string", MinLength: 1},
					"note":     {Type: "string", MinLength: 1},
					"salience": {Type: "number", Min: floatPtr(0), Max: floatPtr(1)},
					"tags":     {Type: "array"},
				},
				Required: []string{"key", "note"},
			},
			Apply: applyMemoryAdd,
		},
		{
			Type:  TypeMemoryPin,
			Owner: OwnerCore,
			Schema: &Schema{
				Fields:   map[string]Field{"fact": {Type: "string", MinLength: 1}},
				Required: []string{"fact"},
			},
			Apply: applyMemoryPin,
		},
	}

	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRelationshipsModule registers the relationships module's action
// and slice ownership. Caps come from the module's resolved parameters.
func RegisterRelationshipsModule(r *Registry, caps state.RelationshipCaps) error {
	err := r.Register(Registration{
		Type:  TypeRelationshipDelta,
		Owner: "relationships." + state.RelationshipSlice,
		Schema: &Schema{
			Fields: map[string]Field{
				"npc":   {Type: "string", MinLength: 1},
				"stat":  {Type: "string", MinLength: 1},
				"delta": {Type: "number"},
			},
			Required: []string{"npc", "stat", "delta"},
		},
		Apply: relationshipDeltaReducer(caps),
	})
	if err != nil {
		return err
	}
	r.RegisterModuleOwner(state.RelationshipSlice, "relationships")
	return nil
}

func applySceneChange(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	to, _ := payload["to"].(string)
	if to == gs.Scene {
		return nil
	}
	sum.SceneChange = &state.SceneChange{From: gs.Scene, To: to}
	gs.Scene = to
	return nil
}

func applyFlagSet(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	name, _ := payload["name"].(string)
	value, _ := payload["value"].(bool)
	gs.SetFlag(name, value)
	sum.FlagsSet = append(sum.FlagsSet, state.FlagChange{Name: name, Value: value})
	return nil
}

func applyResourceDelta(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	name, _ := payload["name"].(string)
	delta, _ := asNumber(payload["delta"])
	newValue := gs.AddResource(name, delta)
	sum.Resources = append(sum.Resources, state.ResourceChange{
		Name:     name,
		Delta:    delta,
		NewValue: newValue,
	})
	return nil
}

func applyObjectiveSet(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	id, _ := payload["id"].(string)
	status, _ := payload["status"].(string)
	prev := gs.SetObjective(id, status)
	if prev != status {
		sum.Objectives = append(sum.Objectives, state.ObjectiveChange{ID: id, From: prev, To: status})
	}
	return nil
}

func applyTimeAdvance(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	ticks, _ := asNumber(payload["ticks"])
	prev, next := gs.AdvanceTime(int(ticks))
	if sum.Time == nil {
		sum.Time = &state.TimeAdvance{FromBand: prev}
	}
	sum.Time.ToBand = next
	sum.Time.TicksAdded += int(ticks)
	sum.Time.Ticks = gs.Ticks
	return nil
}

func applyMemoryAdd(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	note := state.MemoryNote{}
	note.Key, _ = payload["key"].(string)
	note.Note, _ = payload["note"].(string)
	note.Salience, _ = asNumber(payload["salience"])
	if tags, ok := payload["tags"].([]interface{}); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				note.Tags = append(note.Tags, s)
			}
		}
	}

	trimmed := gs.AddMemory(note)
	sum.MemoryAdded = append(sum.MemoryAdded, note.Key)
	sum.MemoryTrimmed = append(sum.MemoryTrimmed, trimmed...)
	return nil
}

func applyMemoryPin(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
	fact, _ := payload["fact"].(string)
	if gs.Pin(fact) {
		sum.MemoryAdded = append(sum.MemoryAdded, "pin:"+fact)
	}
	return nil
}

func relationshipDeltaReducer(caps state.RelationshipCaps) ApplyFunc {
	return func(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
		npc, _ := payload["npc"].(string)
		stat, _ := payload["stat"].(string)
		delta, _ := asNumber(payload["delta"])

		newValue, applied := gs.ApplyRelationshipDelta(npc, stat, delta, caps)
		sum.Relationships = append(sum.Relationships, state.RelationshipChange{
			NPC:      npc,
			Stat:     stat,
			Delta:    applied,
			NewValue: newValue,
		})
		return nil
	}
}

// MergeReducer returns a generic reducer for data-driven module actions:
// the payload's "key" selects an entry in the module's slice and the
// remaining fields are merged into it. Modules whose actions need no
// custom semantics use this.
func MergeReducer(slice string) ApplyFunc {
	return func(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
		key, _ := payload["key"].(string)
		if key == "" {
			return fmt.Errorf("merge action requires a non-empty key field")
		}

		s := gs.Slice(slice)
		entry, ok := s[key].(map[string]interface{})
		if !ok {
			entry = make(map[string]interface{})
			s[key] = entry
		}
		for k, v := range payload {
			if k == "key" {
				continue
			}
			entry[k] = v
		}
		return nil
	}
}

// CounterReducer returns a generic reducer that adds the payload's
// "delta" to a numeric counter named by "key" in the module's slice.
func CounterReducer(slice string) ApplyFunc {
	return func(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error {
		key, _ := payload["key"].(string)
		if key == "" {
			return fmt.Errorf("counter action requires a non-empty key field")
		}
		delta, ok := asNumber(payload["delta"])
		if !ok {
			return fmt.Errorf("counter action requires a numeric delta field")
		}

		s := gs.Slice(slice)
		current, _ := asNumber(s[key])
		s[key] = current + delta
		return nil
	}
}
