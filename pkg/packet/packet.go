package packet

import (
	"encoding/json"
	"fmt"
)

// Category identifies which layer of the turn packet a section came from.
// Categories have a fixed precedence used both for prompt ordering and for
// budget trimming (later categories are trimmed first).
type Category string

const (
	CategoryCore     Category = "core"
	CategoryRuleset  Category = "ruleset"
	CategoryModules  Category = "modules"
	CategoryWorld    Category = "world"
	CategoryScenario Category = "scenario"
	CategoryNPCs     Category = "npcs"
	CategoryState    Category = "state"
	CategoryInput    Category = "input"
)

// CategoryOrder is the fixed prompt order for linearized sections.
var CategoryOrder = []Category{
	CategoryCore,
	CategoryRuleset,
	CategoryModules,
	CategoryWorld,
	CategoryScenario,
	CategoryNPCs,
	CategoryState,
	CategoryInput,
}

// Rank returns the position of a category in CategoryOrder.
// Unknown categories sort last.
func (c Category) Rank() int {
	for i, cat := range CategoryOrder {
		if cat == c {
			return i
		}
	}
	return len(CategoryOrder)
}

// SlotPolicy is the trimming policy attached to a stored slot definition.
type SlotPolicy struct {
	Name     string `json:"name"`
	MustKeep bool   `json:"must_keep"`
	MinChars int    `json:"min_chars"`
	Priority int    `json:"priority"`
}

// SlotText is a named, pre-rendered text fragment with its resolved policy.
// Policy is nil when no slot definition exists for the fragment.
type SlotText struct {
	Name   string      `json:"name"`
	Text   string      `json:"text"`
	Policy *SlotPolicy `json:"policy,omitempty"`
}

// RulesetLayer is the ruleset contribution to a turn packet.
type RulesetLayer struct {
	ID      string     `json:"id"`
	Version int        `json:"version"`
	Slots   []SlotText `json:"slots,omitempty"`
}

// ModuleLayer is one attached module's contribution to a turn packet.
type ModuleLayer struct {
	ID      string                 `json:"id"`
	Version int                    `json:"version"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Slots   []SlotText             `json:"slots,omitempty"`
	Hints   []string               `json:"hints,omitempty"` // AI guidance lines declared by the module
}

// WorldLayer is the world contribution to a turn packet.
type WorldLayer struct {
	ID      string     `json:"id"`
	Version int        `json:"version"`
	Slots   []SlotText `json:"slots,omitempty"`
}

// ScenarioLayer is the optional scenario contribution, including which
// graph nodes are currently reachable for this game state.
type ScenarioLayer struct {
	ID        string     `json:"id"`
	Version   int        `json:"version"`
	Slots     []SlotText `json:"slots,omitempty"`
	Reachable []string   `json:"reachable,omitempty"`
}

// NPCLayer is one active NPC's contribution to a turn packet.
type NPCLayer struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Slots []SlotText `json:"slots,omitempty"`
}

// Input is the player's action for this turn.
type Input struct {
	Kind string `json:"kind"` // "say", "do", "story"
	Text string `json:"text"`
}

// TurnPacket is the full layered context assembled for one model
// invocation. It is built fresh per turn and owned by the orchestrator for
// the duration of one request; it is never shared across turns.
type TurnPacket struct {
	Core     string                 `json:"core"`
	Ruleset  RulesetLayer           `json:"ruleset"`
	Modules  []ModuleLayer          `json:"modules,omitempty"`
	World    WorldLayer             `json:"world"`
	Scenario *ScenarioLayer         `json:"scenario,omitempty"`
	NPCs     []NPCLayer             `json:"npcs,omitempty"`
	State    map[string]interface{} `json:"state,omitempty"`
	Input    Input                  `json:"input"`
}

// LinearSection is one ordered, labeled text section produced from a turn
// packet. Slot is nil for sections without a stored trimming policy.
type LinearSection struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Text     string      `json:"text"`
	Category Category    `json:"category"`
	Slot     *SlotPolicy `json:"slot,omitempty"`
}

// Linearize converts a turn packet into the ordered section list consumed
// by the budget engine. Section order follows CategoryOrder; within a
// layer, slots keep their stored order.
func Linearize(p *TurnPacket) ([]LinearSection, error) {
	if p == nil {
		return nil, fmt.Errorf("turn packet is required")
	}

	sections := make([]LinearSection, 0, 16)

	if p.Core != "" {
		sections = append(sections, LinearSection{
			Key:      "core",
			Label:    "Core Contract",
			Text:     p.Core,
			Category: CategoryCore,
		})
	}

	for _, slot := range p.Ruleset.Slots {
		sections = append(sections, LinearSection{
			Key:      fmt.Sprintf("ruleset/%s/%s", p.Ruleset.ID, slot.Name),
			Label:    "Ruleset: " + slot.Name,
			Text:     slot.Text,
			Category: CategoryRuleset,
			Slot:     slot.Policy,
		})
	}

	for _, mod := range p.Modules {
		for _, slot := range mod.Slots {
			sections = append(sections, LinearSection{
				Key:      fmt.Sprintf("module/%s/%s", mod.ID, slot.Name),
				Label:    fmt.Sprintf("Module %s: %s", mod.ID, slot.Name),
				Text:     slot.Text,
				Category: CategoryModules,
				Slot:     slot.Policy,
			})
		}
		if len(mod.Hints) > 0 {
			text := joinLines(mod.Hints)
			sections = append(sections, LinearSection{
				Key:      fmt.Sprintf("module/%s/hints", mod.ID),
				Label:    fmt.Sprintf("Module %s: guidance", mod.ID),
				Text:     text,
				Category: CategoryModules,
			})
		}
		if len(mod.Params) > 0 {
			data, err := json.Marshal(mod.Params)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal params for module %s: %w", mod.ID, err)
			}
			sections = append(sections, LinearSection{
				Key:      fmt.Sprintf("module/%s/params", mod.ID),
				Label:    fmt.Sprintf("Module %s: parameters", mod.ID),
				Text:     string(data),
				Category: CategoryModules,
			})
		}
	}

	for _, slot := range p.World.Slots {
		sections = append(sections, LinearSection{
			Key:      fmt.Sprintf("world/%s/%s", p.World.ID, slot.Name),
			Label:    "World: " + slot.Name,
			Text:     slot.Text,
			Category: CategoryWorld,
			Slot:     slot.Policy,
		})
	}

	if p.Scenario != nil {
		for _, slot := range p.Scenario.Slots {
			sections = append(sections, LinearSection{
				Key:      fmt.Sprintf("scenario/%s/%s", p.Scenario.ID, slot.Name),
				Label:    "Scenario: " + slot.Name,
				Text:     slot.Text,
				Category: CategoryScenario,
				Slot:     slot.Policy,
			})
		}
		if len(p.Scenario.Reachable) > 0 {
			data, err := json.Marshal(p.Scenario.Reachable)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal reachable nodes: %w", err)
			}
			sections = append(sections, LinearSection{
				Key:      fmt.Sprintf("scenario/%s/reachable", p.Scenario.ID),
				Label:    "Scenario: reachable branches",
				Text:     string(data),
				Category: CategoryScenario,
			})
		}
	}

	for _, npc := range p.NPCs {
		for _, slot := range npc.Slots {
			sections = append(sections, LinearSection{
				Key:      fmt.Sprintf("npc/%s/%s", npc.ID, slot.Name),
				Label:    fmt.Sprintf("NPC %s: %s", npc.Name, slot.Name),
				Text:     slot.Text,
				Category: CategoryNPCs,
				Slot:     slot.Policy,
			})
		}
	}

	if len(p.State) > 0 {
		data, err := json.Marshal(p.State)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal game state: %w", err)
		}
		sections = append(sections, LinearSection{
			Key:      "state",
			Label:    "Game State",
			Text:     string(data),
			Category: CategoryState,
		})
	}

	if p.Input.Text != "" {
		label := "Player Input"
		if p.Input.Kind != "" {
			label = "Player Input (" + p.Input.Kind + ")"
		}
		sections = append(sections, LinearSection{
			Key:      "input",
			Label:    label,
			Text:     p.Input.Text,
			Category: CategoryInput,
		})
	}

	return sections, nil
}

// Render flattens sections into the final prompt text, one labeled block
// per section.
func Render(sections []LinearSection) string {
	var out string
	for i, s := range sections {
		if i > 0 {
			out += "\n\n"
		}
		out += "## " + s.Label + "\n" + s.Text
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += "- " + line
	}
	return out
}
