package state

import "github.com/talecraft/turnengine/pkg/scenegraph"

// BuildGuardContext flattens game-state values into the context scenario
// guards evaluate against. Exposed names:
//
//   - hot vars and flags by their own name
//   - resources by name
//   - objectives by id (status string)
//   - "scene", "time_band", "turn_counter"
//   - relationship stats as "<npc>.<stat>", and bare "<stat>" when the
//     relationships slice tracks exactly one NPC (unambiguous shorthand
//     used by single-NPC scenarios)
func (gs *GameState) BuildGuardContext() scenegraph.GuardContext {
	ctx := make(scenegraph.GuardContext)

	for k, v := range gs.Hot {
		ctx[k] = v
	}
	for k, v := range gs.Flags {
		ctx[k] = v
	}
	for k, v := range gs.Resources {
		ctx[k] = v
	}
	for k, v := range gs.Objectives {
		ctx[k] = v
	}
	ctx["scene"] = gs.Scene
	ctx["time_band"] = gs.TimeBand
	ctx["turn_counter"] = gs.TurnCounter

	rels := gs.Slices[RelationshipSlice]
	for npcID, v := range rels {
		stats, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		for stat, val := range stats {
			ctx[npcID+"."+stat] = val
			if len(rels) == 1 {
				ctx[stat] = val
			}
		}
	}

	return ctx
}
