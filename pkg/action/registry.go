package action

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/talecraft/turnengine/pkg/state"
)

var (
	// ErrDuplicateAction indicates a re-registration in strict mode.
	ErrDuplicateAction = errors.New("action type already registered")
	// ErrInvalidOwner indicates a malformed owner string.
	ErrInvalidOwner = errors.New("owner must be \"core\" or \"<module>.<slice>\"")
)

// OwnerCore marks actions owned by the engine itself, exempt from the
// module-attachment check.
const OwnerCore = "core"

// ApplyFunc applies one validated act payload to a game-state snapshot.
// The snapshot is a turn-private copy; reducers mutate it directly and
// record observable effects on the summary.
type ApplyFunc func(gs *state.GameState, payload map[string]interface{}, sum *state.ChangeSummary) error

// Registration binds an action type to its payload schema, owning state
// slice and reducer.
type Registration struct {
	Type   string
	Schema *Schema
	Owner  string // "core" or "<module>.<slice>"
	Apply  ApplyFunc
}

// OwnerModule returns the module part of the owner, or "" for core.
func (r Registration) OwnerModule() string {
	if r.Owner == OwnerCore {
		return ""
	}
	module, _, _ := strings.Cut(r.Owner, ".")
	return module
}

// Registry is the process-wide action table, constructed at service
// startup and passed by reference to the validator and interpreter.
// Reads are lock-free on an immutable map; Reload swaps the whole table
// so concurrent readers never observe a partially-populated registry.
type Registry struct {
	mu     sync.RWMutex
	regs   map[string]Registration
	owners map[string][]string // slice name -> module ids claiming it
	strict bool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. In strict mode re-registering an
// action type is an error; otherwise it warns and overwrites, which keeps
// hot-reloading of module packs working in development.
func NewRegistry(strict bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		regs:   make(map[string]Registration),
		owners: make(map[string][]string),
		strict: strict,
		logger: logger,
	}
}

// Register stores a registration.
func (r *Registry) Register(reg Registration) error {
	if reg.Type == "" {
		return fmt.Errorf("action type is required")
	}
	if reg.Owner != OwnerCore && !strings.Contains(reg.Owner, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidOwner, reg.Owner)
	}
	if reg.Apply == nil {
		return fmt.Errorf("action %s has no apply function", reg.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.regs[reg.Type]; exists {
		if r.strict {
			return fmt.Errorf("%w: %s", ErrDuplicateAction, reg.Type)
		}
		r.logger.Warn("Overwriting existing action registration",
			"action_type", reg.Type,
			"owner", reg.Owner)
	}

	// Copy-and-swap so concurrent Get calls on the old map stay valid.
	next := make(map[string]Registration, len(r.regs)+1)
	for k, v := range r.regs {
		next[k] = v
	}
	next[reg.Type] = reg
	r.regs = next

	return nil
}

// RegisterModuleOwner records that a module claims a state slice. Two
// modules claiming the same slice is a modeling conflict that surfaces
// through HealthWarnings, never an automatic resolution.
func (r *Registry) RegisterModuleOwner(slice, moduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.owners[slice] {
		if id == moduleID {
			return
		}
	}
	next := make(map[string][]string, len(r.owners)+1)
	for k, v := range r.owners {
		next[k] = v
	}
	next[slice] = append(append([]string{}, r.owners[slice]...), moduleID)
	r.owners = next
}

// Get returns the registration for an action type.
func (r *Registry) Get(actionType string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[actionType]
	return reg, ok
}

// Types returns all registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.regs))
	for t := range r.regs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// HealthWarnings reports registry-level modeling conflicts.
func (r *Registry) HealthWarnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var warnings []string
	slices := make([]string, 0, len(r.owners))
	for slice := range r.owners {
		slices = append(slices, slice)
	}
	sort.Strings(slices)
	for _, slice := range slices {
		if owners := r.owners[slice]; len(owners) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"state slice %q is claimed by multiple modules: %s",
				slice, strings.Join(owners, ", ")))
		}
	}
	return warnings
}

// Reload replaces the whole table in one swap. Used when module packs
// change at admin time; in-flight readers keep the table they started
// with.
func (r *Registry) Reload(regs []Registration, owners map[string]string) error {
	nextRegs := make(map[string]Registration, len(regs))
	for _, reg := range regs {
		if _, exists := nextRegs[reg.Type]; exists {
			if r.strict {
				return fmt.Errorf("%w: %s", ErrDuplicateAction, reg.Type)
			}
			r.logger.Warn("Duplicate action registration in reload", "action_type", reg.Type)
		}
		nextRegs[reg.Type] = reg
	}

	nextOwners := make(map[string][]string, len(owners))
	for slice, moduleID := range owners {
		nextOwners[slice] = []string{moduleID}
	}

	r.mu.Lock()
	r.regs = nextRegs
	r.owners = nextOwners
	r.mu.Unlock()

	return nil
}
