// Package turn runs the top-level turn state machine: assemble the
// prompt, infer, validate the reply (with at most one repair retry),
// interpret the declared acts and persist the outcome.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talecraft/turnengine/internal/services"
	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/pkg/action"
	"github.com/talecraft/turnengine/pkg/assemble"
	"github.com/talecraft/turnengine/pkg/budget"
	"github.com/talecraft/turnengine/pkg/chat"
	"github.com/talecraft/turnengine/pkg/contract"
	"github.com/talecraft/turnengine/pkg/packet"
	"github.com/talecraft/turnengine/pkg/state"
)

// State names the orchestrator's phases. FAILED is reachable from any
// state; RETRYING is entered at most once per turn.
type State string

const (
	StateAssembling   State = "ASSEMBLING"
	StateInferring    State = "INFERRING"
	StateValidating   State = "VALIDATING"
	StateRetrying     State = "RETRYING"
	StateInterpreting State = "INTERPRETING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Discriminated failure reasons returned to callers instead of raw
// errors, so UX can distinguish "try again" from "misconfigured".
const (
	FailInvalidInput         = "invalid_input"
	FailValidationAfterRetry = "validation_failed_after_retry"
	FailInfra                = "infra_error"
)

// Request names one turn submission.
type Request struct {
	GameStateID    uuid.UUID `json:"gamestate_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`

	WorldID    string   `json:"world_id"`
	RulesetID  string   `json:"ruleset_id"`
	ScenarioID string   `json:"scenario_id,omitempty"`
	EntrySlug  string   `json:"entry_slug"`
	ModuleIDs  []string `json:"module_ids,omitempty"`
	NPCIDs     []string `json:"npc_ids,omitempty"`

	InputKind string `json:"input_kind,omitempty"`
	InputText string `json:"input_text"`
}

// Result is the caller-facing outcome of one turn.
type Result struct {
	TurnID        string   `json:"turn_id"`
	State         State    `json:"state"`
	FailureReason string   `json:"failure_reason,omitempty"`
	Violations    []string `json:"violations,omitempty"`

	Scene     string            `json:"scene,omitempty"`
	Narration string            `json:"narration,omitempty"`
	Choices   []contract.Choice `json:"choices,omitempty"`
	Val       *string           `json:"val,omitempty"`

	Retried  bool                 `json:"retried"`
	Replayed bool                 `json:"replayed,omitempty"`
	Summary  *state.ChangeSummary `json:"summary,omitempty"`
	Budget   *budget.Report       `json:"budget,omitempty"`
	Metadata *assemble.Metadata   `json:"metadata,omitempty"`

	GameState *state.GameState `json:"gamestate,omitempty"`
}

// Failed reports whether the turn ended in the terminal FAILED state.
func (r *Result) Failed() bool { return r.State == StateFailed }

// Options carries the orchestrator's tunables.
type Options struct {
	MaxTokens           int
	NPCCap              int
	InferTimeout        time.Duration
	AllowUnknownActions bool
	Locale              string
	ChoiceLabelMaxLen   map[string]int
	Logger              *slog.Logger
}

// Orchestrator drives turns end to end. Safe for concurrent use; all
// per-turn data is local to Run.
type Orchestrator struct {
	store        storage.Storage
	model        services.ModelService
	registry     *action.Registry
	interpreter  *action.Interpreter
	output       *contract.Validator
	maxTokens    int
	npcCap       int
	inferTimeout time.Duration
	logger       *slog.Logger
}

func New(store storage.Storage, model services.ModelService, registry *action.Registry, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	actValidator := action.NewValidator(registry, store, opts.AllowUnknownActions, logger)

	return &Orchestrator{
		store:       store,
		model:       model,
		registry:    registry,
		interpreter: action.NewInterpreter(registry, actValidator, logger),
		output: contract.NewValidator(contract.LocaleRules{
			Locale:            opts.Locale,
			ChoiceLabelMaxLen: opts.ChoiceLabelMaxLen,
		}),
		maxTokens:    opts.MaxTokens,
		npcCap:       opts.NPCCap,
		inferTimeout: opts.InferTimeout,
		logger:       logger,
	}
}

// Run executes one turn. The returned error is reserved for programming
// mistakes (nil request); every operational failure is expressed in the
// Result so callers always get a discriminated reason.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, errors.New("turn request is required")
	}

	turnID := uuid.New().String()
	started := time.Now()
	log := o.logger.With("turn_id", turnID, "gamestate_id", req.GameStateID)

	// Idempotency: a duplicate submission replays the original turn's
	// persisted result instead of re-invoking the model.
	if req.IdempotencyKey != "" {
		holder, won, err := o.store.ClaimTurnKey(ctx, req.IdempotencyKey, turnID)
		if err != nil {
			return o.fail(ctx, turnID, req, StateAssembling, FailInfra, started, nil, err), nil
		}
		if !won && holder != "" {
			return o.replay(ctx, holder, req, log)
		}
	}

	res := &Result{TurnID: turnID, State: StateAssembling}

	gs, err := o.store.LoadGameState(ctx, req.GameStateID)
	if err != nil {
		return o.fail(ctx, turnID, req, StateAssembling, FailInfra, started, nil, err), nil
	}
	if gs == nil {
		return o.fail(ctx, turnID, req, StateAssembling, FailInvalidInput, started, nil,
			fmt.Errorf("gamestate %s not found", req.GameStateID)), nil
	}
	if gs.IsEnded {
		return o.fail(ctx, turnID, req, StateAssembling, FailInvalidInput, started, nil,
			errors.New("story has ended")), nil
	}

	// ASSEMBLING
	pkt, meta, err := assemble.New(o.store, o.logger).
		WithRequest(assemble.Request{
			WorldID:    req.WorldID,
			RulesetID:  req.RulesetID,
			ScenarioID: req.ScenarioID,
			EntrySlug:  req.EntrySlug,
			ModuleIDs:  req.ModuleIDs,
			NPCIDs:     req.NPCIDs,
			State:      gs,
			InputKind:  req.InputKind,
			InputText:  req.InputText,
		}).
		WithNPCCap(o.npcCap).
		WithBudget(o.maxTokens).
		Build(ctx)
	if err != nil {
		reason := FailInfra
		if errors.Is(err, assemble.ErrInvalidRequest) {
			reason = FailInvalidInput
		}
		return o.fail(ctx, turnID, req, StateAssembling, reason, started, nil, err), nil
	}
	res.Metadata = meta

	sections, err := packet.Linearize(pkt)
	if err != nil {
		return o.fail(ctx, turnID, req, StateAssembling, FailInvalidInput, started, nil, err), nil
	}

	budgeted := budget.Apply(sections, o.maxTokens)
	res.Budget = &budgeted.Report
	for _, w := range budgeted.Report.Warnings {
		log.Warn("Budget warning", "warning", w)
	}

	messages := promptMessages(budgeted.Sections)

	// INFERRING / VALIDATING, with at most one repair retry.
	res.State = StateInferring
	var out *contract.Output
	var rawReply string

	for attempt := 0; attempt < 2; attempt++ {
		reply, err := o.infer(ctx, messages)
		if err != nil {
			return o.fail(ctx, turnID, req, StateInferring, FailInfra, started, res, err), nil
		}
		rawReply = reply.Raw

		res.State = StateValidating
		obj := reply.JSON
		var violations []string
		if obj == nil {
			obj, err = contract.ExtractObject(reply.Raw)
			if err != nil {
				violations = []string{err.Error()}
			}
		}
		if obj != nil {
			out, violations = o.output.Validate(obj)
		}

		if len(violations) == 0 {
			break
		}
		res.Violations = violations

		if attempt == 1 {
			log.Warn("Model output failed validation after retry", "violations", len(violations))
			return o.fail(ctx, turnID, req, StateValidating, FailValidationAfterRetry, started, res, nil), nil
		}

		// RETRYING: feed the failed reply and the repair hint back in.
		res.State = StateRetrying
		res.Retried = true
		log.Info("Model output failed validation, retrying with repair hint", "violations", len(violations))
		messages = append(messages,
			chat.Message{Role: chat.RoleAssistant, Content: reply.Raw},
			chat.Message{Role: chat.RoleUser, Content: contract.RepairHint(violations)},
		)
	}
	res.Violations = nil

	// INTERPRETING
	res.State = StateInterpreting
	next, sum, err := o.interpreter.ApplyActs(ctx, gs, out.Acts)
	if err != nil {
		return o.fail(ctx, turnID, req, StateInterpreting, FailInfra, started, res, err), nil
	}
	next.TurnCounter++

	// DONE: persist state, then bookkeeping.
	if err := o.store.SaveGameState(ctx, next.ID, next); err != nil {
		return o.fail(ctx, turnID, req, StateInterpreting, FailInfra, started, res, err), nil
	}
	if err := o.store.SaveBudgetReport(ctx, turnID, &budgeted.Report); err != nil {
		log.Warn("Failed to persist budget report", "error", err)
	}

	res.State = StateDone
	res.Scene = out.Scene
	res.Narration = out.Text
	res.Choices = out.Choices
	res.Val = out.Val
	res.Summary = sum
	res.GameState = next

	o.audit(ctx, &storage.TurnAudit{
		TurnID:      turnID,
		GameStateID: req.GameStateID,
		StoryID:     next.StoryID,
		Status:      string(StateDone),
		Retried:     res.Retried,
		RawReply:    rawReply,
		Summary:     sum,
		DurationMs:  time.Since(started).Milliseconds(),
	})

	log.Info("Turn completed",
		"retried", res.Retried,
		"acts", len(out.Acts),
		"violations", len(sum.Violations),
		"duration_ms", time.Since(started).Milliseconds())

	return res, nil
}

// infer invokes the model transport under the configured hard timeout.
func (o *Orchestrator) infer(ctx context.Context, messages []chat.Message) (*chat.Reply, error) {
	if o.inferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.inferTimeout)
		defer cancel()
	}
	return o.model.Infer(ctx, messages)
}

// replay returns the persisted outcome of the turn that already holds
// the caller's idempotency key.
func (o *Orchestrator) replay(ctx context.Context, turnID string, req *Request, log *slog.Logger) (*Result, error) {
	log.Info("Duplicate turn submission, replaying persisted result", "original_turn_id", turnID)

	audit, err := o.store.LoadTurnAudit(ctx, turnID)
	if err != nil || audit == nil {
		return &Result{
			TurnID:        turnID,
			State:         StateFailed,
			FailureReason: FailInfra,
			Replayed:      true,
		}, nil
	}

	res := &Result{
		TurnID:        audit.TurnID,
		State:         State(audit.Status),
		FailureReason: audit.FailureReason,
		Violations:    audit.Violations,
		Retried:       audit.Retried,
		Replayed:      true,
		Summary:       audit.Summary,
	}
	if gs, err := o.store.LoadGameState(ctx, req.GameStateID); err == nil && gs != nil {
		res.GameState = gs
		res.Scene = gs.Scene
	}
	return res, nil
}

// fail finalizes a terminal failure: logs it, writes the audit record and
// shapes the caller-facing result. No game state is committed.
func (o *Orchestrator) fail(ctx context.Context, turnID string, req *Request, at State, reason string, started time.Time, partial *Result, cause error) *Result {
	res := partial
	if res == nil {
		res = &Result{TurnID: turnID}
	}
	res.State = StateFailed
	res.FailureReason = reason
	res.GameState = nil

	attrs := []any{"turn_id", turnID, "failed_at", string(at), "reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	o.logger.Error("Turn failed", attrs...)

	o.audit(ctx, &storage.TurnAudit{
		TurnID:        turnID,
		GameStateID:   req.GameStateID,
		Status:        string(StateFailed),
		FailureReason: reason,
		Retried:       res.Retried,
		Violations:    res.Violations,
		DurationMs:    time.Since(started).Milliseconds(),
	})

	return res
}

func (o *Orchestrator) audit(ctx context.Context, audit *storage.TurnAudit) {
	if err := o.store.SaveTurnAudit(ctx, audit); err != nil {
		o.logger.Warn("Failed to persist turn audit", "turn_id", audit.TurnID, "error", err)
	}
}

// promptMessages splits the budgeted sections into chat messages: every
// section except the player input becomes the system prompt; the input
// section becomes the user message.
func promptMessages(sections []packet.LinearSection) []chat.Message {
	var system []packet.LinearSection
	userText := ""
	for _, s := range sections {
		if s.Category == packet.CategoryInput {
			userText = s.Text
			continue
		}
		system = append(system, s)
	}
	if userText == "" {
		userText = "Continue the story."
	}

	return []chat.Message{
		{Role: chat.RoleSystem, Content: packet.Render(system)},
		{Role: chat.RoleUser, Content: userText},
	}
}
