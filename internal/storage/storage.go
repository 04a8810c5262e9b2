package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/talecraft/turnengine/pkg/budget"
	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/packet"
	"github.com/talecraft/turnengine/pkg/state"
)

// TurnAudit is the persisted record of one turn: what the model was
// asked, what came back, and how validation and interpretation went.
type TurnAudit struct {
	TurnID        string               `json:"turn_id"`
	GameStateID   uuid.UUID            `json:"gamestate_id"`
	StoryID       string               `json:"story_id,omitempty"`
	Status        string               `json:"status"`
	FailureReason string               `json:"failure_reason,omitempty"`
	Retried       bool                 `json:"retried"`
	RawReply      string               `json:"raw_reply,omitempty"`
	Violations    []string             `json:"violations,omitempty"`
	Summary       *state.ChangeSummary `json:"summary,omitempty"`
	DurationMs    int64                `json:"duration_ms"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Storage is the persistence surface for the turn pipeline: Redis for
// mutable per-story data (game state, attachments, params, turn
// bookkeeping) and the filesystem for authored content packs.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// GameState operations (Redis-backed)
	SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error
	LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error)
	DeleteGameState(ctx context.Context, id uuid.UUID) error

	// Content operations (filesystem-backed). Together these satisfy
	// the assembler's Source interface.
	GetWorld(ctx context.Context, id string) (*content.World, error)
	GetRuleset(ctx context.Context, id string) (*content.Ruleset, error)
	GetModule(ctx context.Context, id string) (*content.Module, error)
	GetScenario(ctx context.Context, id string) (*content.Scenario, error)
	GetNPC(ctx context.Context, id string) (*content.NPC, error)
	GetSlotDef(ctx context.Context, entityType, name string) (*packet.SlotPolicy, error)
	ListWorlds(ctx context.Context) ([]string, error)
	ListModules(ctx context.Context) ([]string, error)
	ListScenarios(ctx context.Context) ([]string, error)

	// Module params: story-level overrides stored in Redis, merged onto
	// module defaults from the content pack.
	GetModuleParams(ctx context.Context, storyID, moduleID string) (map[string]interface{}, bool, error)
	SetModuleParams(ctx context.Context, storyID, moduleID string, params map[string]interface{}) error

	// Module attachment (Redis-backed). Satisfies the act validator's
	// AttachmentView interface.
	AttachModule(ctx context.Context, storyID, moduleID string) error
	DetachModule(ctx context.Context, storyID, moduleID string) error
	ModuleAttached(ctx context.Context, storyID, moduleID string) (bool, error)
	ListAttachedModules(ctx context.Context, storyID string) ([]string, error)

	// Turn bookkeeping (Redis-backed)
	SaveBudgetReport(ctx context.Context, turnID string, rep *budget.Report) error
	LoadBudgetReport(ctx context.Context, turnID string) (*budget.Report, error)
	SaveTurnAudit(ctx context.Context, audit *TurnAudit) error
	LoadTurnAudit(ctx context.Context, turnID string) (*TurnAudit, error)

	// ClaimTurnKey reserves an idempotency key for a turn. When the key
	// is already held, the claim fails and the holding turn ID is
	// returned so the caller can replay that turn's result.
	ClaimTurnKey(ctx context.Context, key, turnID string) (string, bool, error)
}
