// Package content defines the stored authoring entities the turn pipeline
// consumes: worlds, rulesets, modules, scenarios and NPCs, each carrying
// named pre-rendered text slots.
package content

import (
	"github.com/talecraft/turnengine/pkg/scenegraph"
)

// Slot is a named, pre-rendered text fragment as stored on an entity.
// Trimming policy lives in slot definitions, resolved at assembly time.
type Slot struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// SlotDef is a stored trimming policy for slots of a given entity type
// and name.
type SlotDef struct {
	Type     string `json:"type"` // "world", "ruleset", "module", "scenario", "npc"
	Name     string `json:"name"`
	MustKeep bool   `json:"must_keep"`
	MinChars int    `json:"min_chars"`
	Priority int    `json:"priority"`
}

// World is the setting layer.
type World struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Name    string `json:"name"`
	Slots   []Slot `json:"slots,omitempty"`
}

// Ruleset is the mechanics layer.
type Ruleset struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Name    string `json:"name"`
	Slots   []Slot `json:"slots,omitempty"`
}

// ActionDecl is a module-declared action: schema fields plus a named
// reducer kind ("merge" or "counter") the engine binds at registration.
type ActionDecl struct {
	Type     string               `json:"type"`
	Reducer  string               `json:"reducer,omitempty"` // default "merge"
	Fields   map[string]FieldDecl `json:"fields,omitempty"`
	Required []string             `json:"required,omitempty"`
}

// FieldDecl mirrors the schema field subset modules may declare.
type FieldDecl struct {
	Type      string   `json:"type"`
	MinLength int      `json:"min_length,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// Module is a pluggable unit declaring state slices, actions, default
// parameters and AI hints.
type Module struct {
	ID       string                 `json:"id"`
	Version  int                    `json:"version"`
	Name     string                 `json:"name"`
	Slices   []string               `json:"slices,omitempty"`
	Actions  []ActionDecl           `json:"actions,omitempty"`
	Defaults map[string]interface{} `json:"defaults,omitempty"`
	Hints    []string               `json:"hints,omitempty"`
	Slots    []Slot                 `json:"slots,omitempty"`
}

// Scenario is a narrative graph plus its prompt slots.
type Scenario struct {
	ID      string           `json:"id"`
	Version int              `json:"version"`
	Name    string           `json:"name"`
	Graph   scenegraph.Graph `json:"graph"`
	Slots   []Slot           `json:"slots,omitempty"`
}

// NPC is a non-player character's stored profile.
type NPC struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slots []Slot `json:"slots,omitempty"`
}

// MergeParams layers story-level overrides onto module defaults. Module
// defaults are always present; a missing override map means defaults,
// never a failure. The second return reports whether any default was
// used, so callers can tell configured from fallback values.
func MergeParams(defaults, overrides map[string]interface{}) (map[string]interface{}, bool) {
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	usedDefault := false
	for k, v := range defaults {
		merged[k] = v
		if _, overridden := overrides[k]; !overridden {
			usedDefault = true
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged, usedDefault
}
