package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/talecraft/turnengine/pkg/budget"
	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/packet"
	"github.com/talecraft/turnengine/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu          sync.RWMutex
	gamestates  map[uuid.UUID]*state.GameState
	worlds      map[string]*content.World
	rulesets    map[string]*content.Ruleset
	modules     map[string]*content.Module
	scenarios   map[string]*content.Scenario
	npcs        map[string]*content.NPC
	slotDefs    map[string]packet.SlotPolicy
	params      map[string]map[string]interface{} // storyID:moduleID -> overrides
	attachments map[string]map[string]bool        // storyID -> moduleID set
	budgets     map[string]*budget.Report
	audits      map[string]*TurnAudit
	turnKeys    map[string]string
	pingError   error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		gamestates:  make(map[uuid.UUID]*state.GameState),
		worlds:      make(map[string]*content.World),
		rulesets:    make(map[string]*content.Ruleset),
		modules:     make(map[string]*content.Module),
		scenarios:   make(map[string]*content.Scenario),
		npcs:        make(map[string]*content.NPC),
		slotDefs:    make(map[string]packet.SlotPolicy),
		params:      make(map[string]map[string]interface{}),
		attachments: make(map[string]map[string]bool),
		budgets:     make(map[string]*budget.Report),
		audits:      make(map[string]*TurnAudit),
		turnKeys:    make(map[string]string),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

// GameState operations

func (m *MockStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gamestates[id] = gs
	return nil
}

func (m *MockStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gs, exists := m.gamestates[id]
	if !exists {
		return nil, nil // Return nil for not found
	}
	return gs, nil
}

func (m *MockStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gamestates, id)
	return nil
}

// Content operations

func (m *MockStorage) GetWorld(ctx context.Context, id string) (*content.World, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, exists := m.worlds[id]
	if !exists {
		return nil, errors.New("world not found")
	}
	return w, nil
}

func (m *MockStorage) GetRuleset(ctx context.Context, id string) (*content.Ruleset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, exists := m.rulesets[id]
	if !exists {
		return nil, errors.New("ruleset not found")
	}
	return r, nil
}

func (m *MockStorage) GetModule(ctx context.Context, id string) (*content.Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, exists := m.modules[id]
	if !exists {
		return nil, errors.New("module not found")
	}
	return mod, nil
}

func (m *MockStorage) GetScenario(ctx context.Context, id string) (*content.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, exists := m.scenarios[id]
	if !exists {
		return nil, errors.New("scenario not found")
	}
	return s, nil
}

func (m *MockStorage) GetNPC(ctx context.Context, id string) (*content.NPC, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, exists := m.npcs[id]
	if !exists {
		return nil, errors.New("npc not found")
	}
	return n, nil
}

func (m *MockStorage) GetSlotDef(ctx context.Context, entityType, name string) (*packet.SlotPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.slotDefs[entityType+"/"+name]
	if !ok {
		return nil, nil
	}
	p := policy
	return &p, nil
}

func (m *MockStorage) ListWorlds(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.worlds))
	for id := range m.worlds {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MockStorage) ListModules(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.modules))
	for id := range m.modules {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MockStorage) ListScenarios(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.scenarios))
	for id := range m.scenarios {
		ids = append(ids, id)
	}
	return ids, nil
}

// Module params

func (m *MockStorage) GetModuleParams(ctx context.Context, storyID, moduleID string) (map[string]interface{}, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, exists := m.modules[moduleID]
	if !exists {
		return nil, false, errors.New("module not found")
	}
	merged, usedDefault := content.MergeParams(mod.Defaults, m.params[storyID+":"+moduleID])
	return merged, usedDefault, nil
}

func (m *MockStorage) SetModuleParams(ctx context.Context, storyID, moduleID string, params map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[storyID+":"+moduleID] = params
	return nil
}

// Module attachment

func (m *MockStorage) AttachModule(ctx context.Context, storyID, moduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachments[storyID] == nil {
		m.attachments[storyID] = make(map[string]bool)
	}
	m.attachments[storyID][moduleID] = true
	return nil
}

func (m *MockStorage) DetachModule(ctx context.Context, storyID, moduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attachments[storyID], moduleID)
	return nil
}

func (m *MockStorage) ModuleAttached(ctx context.Context, storyID, moduleID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attachments[storyID][moduleID], nil
}

func (m *MockStorage) ListAttachedModules(ctx context.Context, storyID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.attachments[storyID]))
	for id := range m.attachments[storyID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// Turn bookkeeping

func (m *MockStorage) SaveBudgetReport(ctx context.Context, turnID string, rep *budget.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[turnID] = rep
	return nil
}

func (m *MockStorage) LoadBudgetReport(ctx context.Context, turnID string) (*budget.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.budgets[turnID], nil
}

func (m *MockStorage) SaveTurnAudit(ctx context.Context, audit *TurnAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[audit.TurnID] = audit
	return nil
}

func (m *MockStorage) LoadTurnAudit(ctx context.Context, turnID string) (*TurnAudit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audits[turnID], nil
}

func (m *MockStorage) ClaimTurnKey(ctx context.Context, key, turnID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, exists := m.turnKeys[key]; exists {
		return holder, false, nil
	}
	m.turnKeys[key] = turnID
	return turnID, true, nil
}

// Seeding helpers (for testing)

func (m *MockStorage) AddWorld(w *content.World) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worlds[w.ID] = w
}

func (m *MockStorage) AddRuleset(r *content.Ruleset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesets[r.ID] = r
}

func (m *MockStorage) AddModule(mod *content.Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[mod.ID] = mod
}

func (m *MockStorage) AddScenario(s *content.Scenario) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[s.ID] = s
}

func (m *MockStorage) AddNPC(n *content.NPC) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.npcs[n.ID] = n
}

func (m *MockStorage) AddSlotDef(d content.SlotDef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slotDefs[d.Type+"/"+d.Name] = packet.SlotPolicy{
		Name:     d.Name,
		MustKeep: d.MustKeep,
		MinChars: d.MinChars,
		Priority: d.Priority,
	}
}
