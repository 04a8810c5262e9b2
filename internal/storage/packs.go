package storage

import (
	"fmt"

	"github.com/talecraft/turnengine/pkg/action"
	"github.com/talecraft/turnengine/pkg/content"
)

// ModuleRegistrations converts a module's declared actions into registry
// entries, binding each declaration to a generic reducer over the
// module's first state slice. Modules needing custom reducer semantics
// (relationships) are registered separately by the engine.
func ModuleRegistrations(mod *content.Module) ([]action.Registration, error) {
	if len(mod.Actions) == 0 {
		return nil, nil
	}
	if len(mod.Slices) == 0 {
		return nil, fmt.Errorf("module %s declares actions but no state slice", mod.ID)
	}
	slice := mod.Slices[0]

	regs := make([]action.Registration, 0, len(mod.Actions))
	for _, decl := range mod.Actions {
		var apply action.ApplyFunc
		switch decl.Reducer {
		case "", "merge":
			apply = action.MergeReducer(slice)
		case "counter":
			apply = action.CounterReducer(slice)
		default:
			return nil, fmt.Errorf("module %s action %s: unknown reducer %q", mod.ID, decl.Type, decl.Reducer)
		}

		regs = append(regs, action.Registration{
			Type:   decl.Type,
			Owner:  mod.ID + "." + slice,
			Schema: declSchema(decl),
			Apply:  apply,
		})
	}
	return regs, nil
}

// RegisterModulePack registers a module's actions and slice ownership
// claims on the given registry.
func RegisterModulePack(r *action.Registry, mod *content.Module) error {
	regs, err := ModuleRegistrations(mod)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			return fmt.Errorf("module %s: %w", mod.ID, err)
		}
	}
	for _, slice := range mod.Slices {
		r.RegisterModuleOwner(slice, mod.ID)
	}
	return nil
}

// declSchema builds the payload schema from a module's field
// declarations. Generic reducers always need a key field; declaring one
// explicitly overrides the implicit requirement.
func declSchema(decl content.ActionDecl) *action.Schema {
	fields := make(map[string]action.Field, len(decl.Fields)+1)
	for name, f := range decl.Fields {
		fields[name] = action.Field{
			Type:      f.Type,
			MinLength: f.MinLength,
			Enum:      f.Enum,
			Min:       f.Min,
			Max:       f.Max,
		}
	}

	required := append([]string{}, decl.Required...)
	if _, ok := fields["key"]; !ok {
		fields["key"] = action.Field{Type: "string", MinLength: 1}
		required = append(required, "key")
	}
	if decl.Reducer == "counter" {
		if _, ok := fields["delta"]; !ok {
			fields["delta"] = action.Field{Type: "number"}
			required = append(required, "delta")
		}
	}

	return &action.Schema{
		Fields:     fields,
		Required:   required,
		AllowExtra: decl.Reducer == "" || decl.Reducer == "merge",
	}
}
