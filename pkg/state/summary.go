package state

// ChangeSummary aggregates the observable effects of one interpreted act
// batch, grouped by effect category. Persisted as the turn's audit trail.
type ChangeSummary struct {
	Relationships []RelationshipChange `json:"relationships,omitempty"`
	Objectives    []ObjectiveChange    `json:"objectives,omitempty"`
	FlagsSet      []FlagChange         `json:"flags_set,omitempty"`
	Resources     []ResourceChange     `json:"resources,omitempty"`
	SceneChange   *SceneChange         `json:"scene_change,omitempty"`
	Time          *TimeAdvance         `json:"time,omitempty"`
	MemoryAdded   []string             `json:"memory_added,omitempty"`
	MemoryTrimmed []string             `json:"memory_trimmed,omitempty"`
	Violations    []Violation          `json:"violations,omitempty"`
}

type RelationshipChange struct {
	NPC      string  `json:"npc"`
	Stat     string  `json:"stat"`
	Delta    float64 `json:"delta"`
	NewValue float64 `json:"new_value"`
}

type ObjectiveChange struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

type FlagChange struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

type ResourceChange struct {
	Name     string  `json:"name"`
	Delta    float64 `json:"delta"`
	NewValue float64 `json:"new_value"`
}

type SceneChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type TimeAdvance struct {
	FromBand   string `json:"from_band"`
	ToBand     string `json:"to_band"`
	TicksAdded int    `json:"ticks_added"`
	Ticks      int    `json:"ticks"`
}

// Violation records an act that was rejected or failed mid-batch.
// Processing continues with the remaining acts; the violation is the
// audit record of what was skipped.
type Violation struct {
	ActIndex int    `json:"act_index"`
	ActType  string `json:"act_type"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
}
