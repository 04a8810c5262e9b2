package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/packet"
)

// Content pack operations (filesystem-backed). Entities live under
// dataDir as worlds/, rulesets/, modules/, scenarios/, npcs/ with one
// JSON file per entity, plus a single slotdefs.json policy table.

func (r *RedisStorage) GetWorld(ctx context.Context, id string) (*content.World, error) {
	var w content.World
	if err := r.readEntity("worlds", id, &w); err != nil {
		return nil, err
	}
	w.ID = id // Filename overrides any ID in the JSON
	return &w, nil
}

func (r *RedisStorage) GetRuleset(ctx context.Context, id string) (*content.Ruleset, error) {
	var rs content.Ruleset
	if err := r.readEntity("rulesets", id, &rs); err != nil {
		return nil, err
	}
	rs.ID = id
	return &rs, nil
}

func (r *RedisStorage) GetModule(ctx context.Context, id string) (*content.Module, error) {
	var m content.Module
	if err := r.readEntity("modules", id, &m); err != nil {
		return nil, err
	}
	m.ID = id
	return &m, nil
}

func (r *RedisStorage) GetScenario(ctx context.Context, id string) (*content.Scenario, error) {
	var s content.Scenario
	if err := r.readEntity("scenarios", id, &s); err != nil {
		return nil, err
	}
	s.ID = id
	return &s, nil
}

func (r *RedisStorage) GetNPC(ctx context.Context, id string) (*content.NPC, error) {
	var n content.NPC
	if err := r.readEntity("npcs", id, &n); err != nil {
		return nil, err
	}
	n.ID = id
	return &n, nil
}

func (r *RedisStorage) ListWorlds(ctx context.Context) ([]string, error) {
	return r.listEntities("worlds")
}

func (r *RedisStorage) ListModules(ctx context.Context) ([]string, error) {
	return r.listEntities("modules")
}

func (r *RedisStorage) ListScenarios(ctx context.Context) ([]string, error) {
	return r.listEntities("scenarios")
}

// GetModuleParams merges story-level overrides from Redis onto the
// module's pack defaults. Defaults always apply when no override exists.
func (r *RedisStorage) GetModuleParams(ctx context.Context, storyID, moduleID string) (map[string]interface{}, bool, error) {
	mod, err := r.GetModule(ctx, moduleID)
	if err != nil {
		return nil, false, err
	}

	overrides, err := r.loadParamOverrides(ctx, storyID, moduleID)
	if err != nil {
		return nil, false, err
	}

	merged, usedDefault := content.MergeParams(mod.Defaults, overrides)
	return merged, usedDefault, nil
}

// GetSlotDef returns the trimming policy for an entity-type/slot-name
// pair, or nil when none is defined. The policy table is loaded once.
func (r *RedisStorage) GetSlotDef(ctx context.Context, entityType, name string) (*packet.SlotPolicy, error) {
	table, err := r.slotDefs.load(filepath.Join(r.dataDir, "slotdefs.json"))
	if err != nil {
		return nil, err
	}

	policy, ok := table[entityType+"/"+name]
	if !ok {
		return nil, nil
	}
	p := policy // copy so callers cannot mutate the table
	return &p, nil
}

func (r *RedisStorage) readEntity(kind, id string, v interface{}) error {
	path := filepath.Join(r.dataDir, kind, id+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s not found: %s", strings.TrimSuffix(kind, "s"), id)
		}
		return fmt.Errorf("failed to read %s file %s: %w", kind, path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s JSON from %s: %w", kind, path, err)
	}
	return nil
}

func (r *RedisStorage) listEntities(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.dataDir, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s directory: %w", kind, err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return ids, nil
}

// slotDefTable caches the parsed slotdefs.json keyed by "<type>/<name>".
type slotDefTable struct {
	once  sync.Once
	table map[string]packet.SlotPolicy
	err   error
}

func (t *slotDefTable) load(path string) (map[string]packet.SlotPolicy, error) {
	t.once.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				// No policy table means no slot protection, not a failure.
				t.table = map[string]packet.SlotPolicy{}
				return
			}
			t.err = fmt.Errorf("failed to read slot definitions: %w", err)
			return
		}

		var defs []content.SlotDef
		if err := json.Unmarshal(data, &defs); err != nil {
			t.err = fmt.Errorf("failed to parse slot definitions: %w", err)
			return
		}

		table := make(map[string]packet.SlotPolicy, len(defs))
		for _, d := range defs {
			table[d.Type+"/"+d.Name] = packet.SlotPolicy{
				Name:     d.Name,
				MustKeep: d.MustKeep,
				MinChars: d.MinChars,
				Priority: d.Priority,
			}
		}
		t.table = table
	})
	return t.table, t.err
}
