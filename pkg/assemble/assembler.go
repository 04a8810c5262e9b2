// Package assemble builds the layered turn packet for one model
// invocation from stored world, ruleset, module, scenario and NPC data.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talecraft/turnengine/pkg/budget"
	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/packet"
	"github.com/talecraft/turnengine/pkg/scenegraph"
	"github.com/talecraft/turnengine/pkg/state"
)

// ErrInvalidRequest marks terminal input errors: the request itself is
// bad, and retrying the turn cannot help.
var ErrInvalidRequest = errors.New("invalid turn request")

// DefaultNPCCap is the active-NPC ceiling. A hard cap enforced before
// linearization, distinct from token trimming.
const DefaultNPCCap = 4

// Source is the slot/entity lookup surface the assembler consumes.
// Implemented by internal/storage.
type Source interface {
	GetWorld(ctx context.Context, id string) (*content.World, error)
	GetRuleset(ctx context.Context, id string) (*content.Ruleset, error)
	GetModule(ctx context.Context, id string) (*content.Module, error)
	GetScenario(ctx context.Context, id string) (*content.Scenario, error)
	GetNPC(ctx context.Context, id string) (*content.NPC, error)

	// GetSlotDef returns the trimming policy for slots of the given
	// entity type and name, or nil when none is defined.
	GetSlotDef(ctx context.Context, entityType, name string) (*packet.SlotPolicy, error)

	// GetModuleParams resolves story-level parameter overrides merged
	// onto module defaults. Always returns at least the defaults; the
	// bool reports whether any default was used.
	GetModuleParams(ctx context.Context, storyID, moduleID string) (map[string]interface{}, bool, error)
}

// Request names everything one turn assembly needs.
type Request struct {
	WorldID    string
	RulesetID  string
	ScenarioID string
	EntrySlug  string
	ModuleIDs  []string
	NPCIDs     []string
	State      *state.GameState
	InputKind  string
	InputText  string
}

// Dropped records an optional piece excluded from the packet.
type Dropped struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Metadata describes what the assembler produced: token estimate against
// the configured budget and the included/dropped piece lists.
type Metadata struct {
	EstimatedTokens   int       `json:"estimated_tokens"`
	BudgetTokens      int       `json:"budget_tokens"`
	PercentUsed       float64   `json:"percent_used"`
	Included          []string  `json:"included"`
	Dropped           []Dropped `json:"dropped,omitempty"`
	UsedDefaultParams []string  `json:"used_default_params,omitempty"`
}

// Builder assembles turn packets using a fluent interface, separating
// packet construction from orchestration.
type Builder struct {
	source    Source
	logger    *slog.Logger
	req       Request
	npcCap    int
	maxTokens int
}

// New creates a builder with default settings.
func New(source Source, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		source: source,
		logger: logger,
		npcCap: DefaultNPCCap,
	}
}

// WithRequest sets the turn request.
func (b *Builder) WithRequest(req Request) *Builder {
	b.req = req
	return b
}

// WithNPCCap overrides the active-NPC ceiling.
func (b *Builder) WithNPCCap(n int) *Builder {
	if n > 0 {
		b.npcCap = n
	}
	return b
}

// WithBudget sets the token budget used for metadata percentages.
func (b *Builder) WithBudget(maxTokens int) *Builder {
	b.maxTokens = maxTokens
	return b
}

// Build assembles the turn packet. Missing required identifiers (world,
// ruleset, entry point, state) are terminal validation errors; missing
// optional pieces (scenario, modules, NPCs) degrade gracefully and are
// reported in the metadata.
func (b *Builder) Build(ctx context.Context) (*packet.TurnPacket, *Metadata, error) {
	req := b.req
	if req.WorldID == "" {
		return nil, nil, fmt.Errorf("%w: world id is required", ErrInvalidRequest)
	}
	if req.RulesetID == "" {
		return nil, nil, fmt.Errorf("%w: ruleset id is required", ErrInvalidRequest)
	}
	if req.EntrySlug == "" {
		return nil, nil, fmt.Errorf("%w: entry start slug is required", ErrInvalidRequest)
	}
	if req.State == nil {
		return nil, nil, fmt.Errorf("%w: game state is required", ErrInvalidRequest)
	}

	meta := &Metadata{BudgetTokens: b.maxTokens}

	world, err := b.source.GetWorld(ctx, req.WorldID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: world %s: %v", ErrInvalidRequest, req.WorldID, err)
	}
	ruleset, err := b.source.GetRuleset(ctx, req.RulesetID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ruleset %s: %v", ErrInvalidRequest, req.RulesetID, err)
	}

	gs := req.State
	if gs.Scene == "" {
		gs.Scene = req.EntrySlug
	}

	p := &packet.TurnPacket{
		Core: CorePrompt,
		Ruleset: packet.RulesetLayer{
			ID:      ruleset.ID,
			Version: ruleset.Version,
			Slots:   b.slotTexts(ctx, "ruleset", ruleset.Slots),
		},
		World: packet.WorldLayer{
			ID:      world.ID,
			Version: world.Version,
			Slots:   b.slotTexts(ctx, "world", world.Slots),
		},
		State: gs.PromptView(),
		Input: packet.Input{Kind: req.InputKind, Text: req.InputText},
	}
	meta.Included = append(meta.Included, "world:"+world.ID, "ruleset:"+ruleset.ID)

	b.addModules(ctx, p, meta)
	b.addScenario(ctx, p, meta, gs)
	b.addNPCs(ctx, p, meta)

	sections, err := packet.Linearize(p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to linearize turn packet: %w", err)
	}
	meta.EstimatedTokens = budget.EstimateSections(sections)
	if b.maxTokens > 0 {
		meta.PercentUsed = 100 * float64(meta.EstimatedTokens) / float64(b.maxTokens)
	}

	return p, meta, nil
}

func (b *Builder) addModules(ctx context.Context, p *packet.TurnPacket, meta *Metadata) {
	for _, id := range b.req.ModuleIDs {
		mod, err := b.source.GetModule(ctx, id)
		if err != nil {
			b.logger.Warn("Module not found, degrading to empty", "module_id", id, "error", err)
			meta.Dropped = append(meta.Dropped, Dropped{Kind: "module", ID: id, Reason: "not found"})
			continue
		}

		params, usedDefault, err := b.source.GetModuleParams(ctx, b.req.State.StoryID, id)
		if err != nil {
			// Param resolution always has defaults to fall back on.
			b.logger.Warn("Module param resolution failed, using defaults", "module_id", id, "error", err)
			params = mod.Defaults
			usedDefault = true
		}
		if usedDefault {
			meta.UsedDefaultParams = append(meta.UsedDefaultParams, id)
		}

		p.Modules = append(p.Modules, packet.ModuleLayer{
			ID:      mod.ID,
			Version: mod.Version,
			Params:  params,
			Slots:   b.slotTexts(ctx, "module", mod.Slots),
			Hints:   mod.Hints,
		})
		meta.Included = append(meta.Included, "module:"+id)
	}
}

func (b *Builder) addScenario(ctx context.Context, p *packet.TurnPacket, meta *Metadata, gs *state.GameState) {
	if b.req.ScenarioID == "" {
		return
	}

	scen, err := b.source.GetScenario(ctx, b.req.ScenarioID)
	if err != nil {
		b.logger.Warn("Scenario not found, degrading to empty", "scenario_id", b.req.ScenarioID, "error", err)
		meta.Dropped = append(meta.Dropped, Dropped{Kind: "scenario", ID: b.req.ScenarioID, Reason: "not found"})
		return
	}

	// Reachability is recomputed every turn against live guard inputs.
	reachable := scenegraph.Reachable(&scen.Graph, gs.BuildGuardContext())

	p.Scenario = &packet.ScenarioLayer{
		ID:        scen.ID,
		Version:   scen.Version,
		Slots:     b.slotTexts(ctx, "scenario", scen.Slots),
		Reachable: reachable,
	}
	meta.Included = append(meta.Included, "scenario:"+scen.ID)
}

func (b *Builder) addNPCs(ctx context.Context, p *packet.TurnPacket, meta *Metadata) {
	ids := b.req.NPCIDs
	if len(ids) > b.npcCap {
		for _, id := range ids[b.npcCap:] {
			meta.Dropped = append(meta.Dropped, Dropped{Kind: "npc", ID: id, Reason: "active NPC cap exceeded"})
		}
		ids = ids[:b.npcCap]
	}

	for _, id := range ids {
		npc, err := b.source.GetNPC(ctx, id)
		if err != nil {
			b.logger.Warn("NPC not found, degrading to empty", "npc_id", id, "error", err)
			meta.Dropped = append(meta.Dropped, Dropped{Kind: "npc", ID: id, Reason: "not found"})
			continue
		}
		p.NPCs = append(p.NPCs, packet.NPCLayer{
			ID:    npc.ID,
			Name:  npc.Name,
			Slots: b.slotTexts(ctx, "npc", npc.Slots),
		})
		meta.Included = append(meta.Included, "npc:"+id)
	}
}

// slotTexts resolves trimming policies for an entity's slots. A failed
// policy lookup leaves the slot unprotected rather than failing the turn.
func (b *Builder) slotTexts(ctx context.Context, entityType string, slots []content.Slot) []packet.SlotText {
	out := make([]packet.SlotText, 0, len(slots))
	for _, s := range slots {
		policy, err := b.source.GetSlotDef(ctx, entityType, s.Name)
		if err != nil {
			b.logger.Warn("Slot definition lookup failed", "entity_type", entityType, "slot", s.Name, "error", err)
			policy = nil
		}
		out = append(out, packet.SlotText{Name: s.Name, Text: s.Text, Policy: policy})
	}
	return out
}
