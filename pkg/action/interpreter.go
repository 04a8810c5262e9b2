package action

import (
	"context"
	"log/slog"

	"github.com/talecraft/turnengine/pkg/state"
)

// Violation codes beyond the validator's result codes.
const (
	CodeApplyFailed  = "apply_failed"
	CodeSkippedAllow = "skipped_unregistered"
)

// Interpreter applies validated act batches to game-state snapshots via
// registry reducers.
type Interpreter struct {
	registry  *Registry
	validator *Validator
	logger    *slog.Logger
}

func NewInterpreter(registry *Registry, validator *Validator, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		registry:  registry,
		validator: validator,
		logger:    logger,
	}
}

// ApplyActs folds acts sequentially over a copy of the given state and
// returns the new snapshot plus a change summary. Acts are applied
// strictly in the order given; a reducer may depend on the effects of
// earlier acts in the batch.
//
// Individual act failures (validation or apply) are recorded as
// violations and processing continues with the remaining acts. Only
// infrastructure failures abort the whole batch.
func (i *Interpreter) ApplyActs(ctx context.Context, gs *state.GameState, acts []Act) (*state.GameState, *state.ChangeSummary, error) {
	next, err := gs.DeepCopy()
	if err != nil {
		return nil, nil, err
	}

	sum := &state.ChangeSummary{}

	for idx, act := range acts {
		res, err := i.validator.ValidateAct(ctx, next.StoryID, act)
		if err != nil {
			return nil, nil, err
		}

		if !res.Valid() {
			detail := ""
			if len(res.FieldErrors) > 0 {
				detail = res.FieldErrors[0].String()
			}
			sum.Violations = append(sum.Violations, state.Violation{
				ActIndex: idx,
				ActType:  act.Type,
				Code:     res.Code,
				Detail:   detail,
			})
			i.logger.Warn("Act rejected during interpretation",
				"act_index", idx,
				"act_type", act.Type,
				"code", res.Code)
			continue
		}

		reg, registered := i.registry.Get(act.Type)
		if !registered {
			// Valid-with-warning path: unknown type allowed by flag, but
			// there is nothing to apply.
			sum.Violations = append(sum.Violations, state.Violation{
				ActIndex: idx,
				ActType:  act.Type,
				Code:     CodeSkippedAllow,
				Detail:   "no registration; act skipped",
			})
			continue
		}

		if err := reg.Apply(next, act.Data, sum); err != nil {
			sum.Violations = append(sum.Violations, state.Violation{
				ActIndex: idx,
				ActType:  act.Type,
				Code:     CodeApplyFailed,
				Detail:   err.Error(),
			})
			i.logger.Warn("Act reducer failed",
				"act_index", idx,
				"act_type", act.Type,
				"error", err)
		}
	}

	return next, sum, nil
}
