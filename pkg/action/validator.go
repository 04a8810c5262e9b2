package action

import (
	"context"
	"fmt"
	"log/slog"
)

// Validation result codes, ordered by check: existence, schema,
// authorization. The most specific, actionable error surfaces first.
const (
	CodeValid             = "valid"
	CodeUnknownAction     = "unknown_action"
	CodeSchemaInvalid     = "schema_invalid"
	CodeModuleNotAttached = "module_not_attached"
)

// Result is the discriminated outcome of validating one act.
type Result struct {
	Code        string       `json:"code"`
	ActType     string       `json:"act_type"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Valid reports whether the act may be applied.
func (r Result) Valid() bool { return r.Code == CodeValid }

// AttachmentView answers whether a story has a module attached. Backed by
// the story-module attachment table in storage.
type AttachmentView interface {
	ModuleAttached(ctx context.Context, storyID, moduleID string) (bool, error)
}

// Validator checks proposed acts against the registry.
type Validator struct {
	registry     *Registry
	attachments  AttachmentView
	allowUnknown bool
	logger       *slog.Logger
}

// NewValidator creates an act validator. allowUnknown controls the
// forward-compatibility behavior for unregistered action types: false
// rejects them, true warns and allows (used during module rollout so new
// module versions can emit acts older engines skip).
func NewValidator(registry *Registry, attachments AttachmentView, allowUnknown bool, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		registry:     registry,
		attachments:  attachments,
		allowUnknown: allowUnknown,
		logger:       logger,
	}
}

// ValidateAct runs the three-tier check in fixed order: existence, then
// payload schema, then module attachment. The returned error is
// infrastructure failure only (attachment table unavailable); all
// validation outcomes are expressed in the Result.
func (v *Validator) ValidateAct(ctx context.Context, storyID string, act Act) (Result, error) {
	reg, exists := v.registry.Get(act.Type)
	if !exists {
		if v.allowUnknown {
			v.logger.Warn("Allowing unknown action type", "action_type", act.Type, "story_id", storyID)
			return Result{
				Code:     CodeValid,
				ActType:  act.Type,
				Warnings: []string{fmt.Sprintf("action type %q is not registered; allowed by flag", act.Type)},
			}, nil
		}
		return Result{Code: CodeUnknownAction, ActType: act.Type}, nil
	}

	if reg.Schema != nil {
		if fieldErrs := reg.Schema.Validate(act.Data); len(fieldErrs) > 0 {
			return Result{Code: CodeSchemaInvalid, ActType: act.Type, FieldErrors: fieldErrs}, nil
		}
	}

	if module := reg.OwnerModule(); module != "" {
		if v.attachments == nil {
			return Result{Code: CodeModuleNotAttached, ActType: act.Type}, nil
		}
		attached, err := v.attachments.ModuleAttached(ctx, storyID, module)
		if err != nil {
			return Result{}, fmt.Errorf("failed to check module attachment: %w", err)
		}
		if !attached {
			return Result{Code: CodeModuleNotAttached, ActType: act.Type}, nil
		}
	}

	return Result{Code: CodeValid, ActType: act.Type}, nil
}
