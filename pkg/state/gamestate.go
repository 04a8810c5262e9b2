package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameState is the persistent state of one roleplay session. The act
// interpreter receives a snapshot and returns a new snapshot; instances
// are never shared between concurrent turns.
type GameState struct {
	ID      uuid.UUID `json:"id"`
	StoryID string    `json:"story_id"`

	WorldID    string   `json:"world_id"`
	RulesetID  string   `json:"ruleset_id"`
	ScenarioID string   `json:"scenario_id,omitempty"`
	ModuleIDs  []string `json:"module_ids,omitempty"`
	NPCIDs     []string `json:"npc_ids,omitempty"`

	Scene    string `json:"scene,omitempty"`
	TimeBand string `json:"time_band,omitempty"`
	Ticks    int    `json:"ticks"`

	// Hot is small, frequently-read free-form state (vars the narrative
	// sets and reads every turn). Cold is large, rarely-read state.
	Hot  map[string]interface{} `json:"hot,omitempty"`
	Warm Warm                   `json:"warm"`
	Cold map[string]interface{} `json:"cold,omitempty"`

	// Slices holds module-owned state keyed by declared slice name,
	// e.g. Slices["relationships"]["elara"] = {"trust": 5, "desire": 0}.
	Slices map[string]map[string]interface{} `json:"slices,omitempty"`

	Flags      map[string]bool    `json:"flags,omitempty"`
	Resources  map[string]float64 `json:"resources,omitempty"`
	Objectives map[string]string  `json:"objectives,omitempty"` // id -> status

	TurnCounter int       `json:"turn_counter"`
	IsEnded     bool      `json:"is_ended"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Warm is mid-term narrative memory: salience-scored episodic notes plus
// pinned facts that are never trimmed.
type Warm struct {
	Episodic []MemoryNote `json:"episodic,omitempty"`
	Pins     []string     `json:"pins,omitempty"`
}

// MemoryNote is one episodic memory entry.
type MemoryNote struct {
	Key      string   `json:"key"`
	Note     string   `json:"note"`
	Salience float64  `json:"salience"`
	Tags     []string `json:"tags,omitempty"`
	TurnID   string   `json:"turnId,omitempty"`
}

// Objective statuses.
const (
	ObjectiveInactive  = "inactive"
	ObjectiveActive    = "active"
	ObjectiveCompleted = "completed"
	ObjectiveFailed    = "failed"
)

func NewGameState(storyID string) *GameState {
	now := time.Now()
	return &GameState{
		ID:        uuid.New(),
		StoryID:   storyID,
		TimeBand:  TimeBands[0],
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeepCopy returns an independent copy of the game state. Used before
// handing a snapshot to the interpreter so a failed turn never leaves a
// half-applied state behind.
func (gs *GameState) DeepCopy() (*GameState, error) {
	data, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game state for copy: %w", err)
	}
	var out GameState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state copy: %w", err)
	}
	return &out, nil
}

// Slice returns the named module state slice, creating it if absent.
func (gs *GameState) Slice(name string) map[string]interface{} {
	if gs.Slices == nil {
		gs.Slices = make(map[string]map[string]interface{})
	}
	if gs.Slices[name] == nil {
		gs.Slices[name] = make(map[string]interface{})
	}
	return gs.Slices[name]
}

// SetFlag sets a named flag, allocating the map on first use.
func (gs *GameState) SetFlag(name string, value bool) {
	if gs.Flags == nil {
		gs.Flags = make(map[string]bool)
	}
	gs.Flags[name] = value
}

// AddResource applies a delta to a named resource and returns the new
// value. Resources never go below zero.
func (gs *GameState) AddResource(name string, delta float64) float64 {
	if gs.Resources == nil {
		gs.Resources = make(map[string]float64)
	}
	next := gs.Resources[name] + delta
	if next < 0 {
		next = 0
	}
	gs.Resources[name] = next
	return next
}

// SetObjective transitions an objective and returns its previous status.
func (gs *GameState) SetObjective(id, status string) string {
	if gs.Objectives == nil {
		gs.Objectives = make(map[string]string)
	}
	prev, ok := gs.Objectives[id]
	if !ok {
		prev = ObjectiveInactive
	}
	gs.Objectives[id] = status
	return prev
}

// PromptView returns the structured state map embedded in the turn
// packet's STATE layer. Cold state is excluded; it is too large for the
// prompt and the model never needs it.
func (gs *GameState) PromptView() map[string]interface{} {
	view := map[string]interface{}{
		"scene":        gs.Scene,
		"time_band":    gs.TimeBand,
		"ticks":        gs.Ticks,
		"turn_counter": gs.TurnCounter,
	}
	if len(gs.Hot) > 0 {
		view["vars"] = gs.Hot
	}
	if len(gs.Flags) > 0 {
		view["flags"] = gs.Flags
	}
	if len(gs.Resources) > 0 {
		view["resources"] = gs.Resources
	}
	if len(gs.Objectives) > 0 {
		view["objectives"] = gs.Objectives
	}
	if len(gs.Warm.Episodic) > 0 || len(gs.Warm.Pins) > 0 {
		view["memory"] = gs.Warm
	}
	if len(gs.Slices) > 0 {
		view["slices"] = gs.Slices
	}
	return view
}
