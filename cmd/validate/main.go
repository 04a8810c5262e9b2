// Command validate lints a content pack directory: entity JSON files
// must parse strictly, IDs must be snake_case, scenario graphs must pass
// structural validation, and module action declarations must name known
// reducers.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/scenegraph"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <data-dir>\n", os.Args[0])
		os.Exit(1)
	}

	dataDir := os.Args[1]
	v := &PackValidator{}

	if err := v.validatePack(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Content pack is valid!")
}

type PackValidator struct {
	errors []string
}

func (v *PackValidator) errorf(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

var idRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (v *PackValidator) validateID(kind, id string) {
	if !idRe.MatchString(id) {
		v.errorf("%s %q must be lowercase snake_case", kind, id)
	}
}

func (v *PackValidator) validatePack(dataDir string) error {
	v.errors = nil

	v.walkKind(dataDir, "worlds", func(id string, data []byte) {
		var w content.World
		v.strictParse("world", id, data, &w)
	})
	v.walkKind(dataDir, "rulesets", func(id string, data []byte) {
		var rs content.Ruleset
		v.strictParse("ruleset", id, data, &rs)
	})
	v.walkKind(dataDir, "npcs", func(id string, data []byte) {
		var n content.NPC
		v.strictParse("npc", id, data, &n)
	})
	v.walkKind(dataDir, "modules", func(id string, data []byte) {
		var m content.Module
		if !v.strictParse("module", id, data, &m) {
			return
		}
		v.validateModule(id, &m)
	})
	v.walkKind(dataDir, "scenarios", func(id string, data []byte) {
		var s content.Scenario
		if !v.strictParse("scenario", id, data, &s) {
			return
		}
		v.validateScenario(id, &s)
	})
	v.validateSlotDefs(dataDir)

	if len(v.errors) > 0 {
		return fmt.Errorf("%d problem(s):\n%s", len(v.errors), strings.Join(v.errors, "\n"))
	}
	return nil
}

// walkKind runs fn over every JSON file in one entity directory. A
// missing directory is fine; a pack need not ship every kind.
func (v *PackValidator) walkKind(dataDir, kind string, fn func(id string, data []byte)) {
	entries, err := os.ReadDir(filepath.Join(dataDir, kind))
	if err != nil {
		if !os.IsNotExist(err) {
			v.errorf("failed to read %s directory: %v", kind, err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		v.validateID(kind+" filename", id)

		data, err := os.ReadFile(filepath.Join(dataDir, kind, entry.Name()))
		if err != nil {
			v.errorf("failed to read %s/%s: %v", kind, entry.Name(), err)
			continue
		}
		fn(id, data)
	}
}

func (v *PackValidator) strictParse(kind, id string, data []byte, target interface{}) bool {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		v.errorf("%s %s failed strict JSON unmarshaling: %v", kind, id, err)
		return false
	}
	return true
}

func (v *PackValidator) validateModule(id string, m *content.Module) {
	for _, slice := range m.Slices {
		v.validateID("module "+id+" slice", slice)
	}
	if len(m.Actions) > 0 && len(m.Slices) == 0 {
		v.errorf("module %s declares actions but no state slice", id)
	}

	seen := make(map[string]bool)
	for _, decl := range m.Actions {
		if decl.Type == "" {
			v.errorf("module %s declares an action with no type", id)
			continue
		}
		if seen[decl.Type] {
			v.errorf("module %s declares action %q twice", id, decl.Type)
		}
		seen[decl.Type] = true

		switch decl.Reducer {
		case "", "merge", "counter":
		default:
			v.errorf("module %s action %s names unknown reducer %q", id, decl.Type, decl.Reducer)
		}

		for _, req := range decl.Required {
			if _, ok := decl.Fields[req]; !ok && req != "key" && req != "delta" {
				v.errorf("module %s action %s requires undeclared field %q", id, decl.Type, req)
			}
		}
	}
}

func (v *PackValidator) validateScenario(id string, s *content.Scenario) {
	if err := s.Graph.Validate(); err != nil {
		v.errorf("scenario %s graph: %v", id, err)
		return
	}
	for _, warning := range scenegraph.Lint(&s.Graph) {
		v.errorf("scenario %s graph: %s", id, warning)
	}
	for _, node := range s.Graph.Nodes {
		v.validateID("scenario "+id+" node", node.ID)
	}
}

func (v *PackValidator) validateSlotDefs(dataDir string) {
	data, err := os.ReadFile(filepath.Join(dataDir, "slotdefs.json"))
	if err != nil {
		if !os.IsNotExist(err) {
			v.errorf("failed to read slotdefs.json: %v", err)
		}
		return
	}

	var defs []content.SlotDef
	if err := json.Unmarshal(data, &defs); err != nil {
		v.errorf("slotdefs.json: %v", err)
		return
	}

	validTypes := map[string]bool{"world": true, "ruleset": true, "module": true, "scenario": true, "npc": true}
	seen := make(map[string]bool)
	for _, d := range defs {
		if !validTypes[d.Type] {
			v.errorf("slotdefs.json: unknown entity type %q", d.Type)
		}
		key := d.Type + "/" + d.Name
		if seen[key] {
			v.errorf("slotdefs.json: duplicate definition for %s", key)
		}
		seen[key] = true
		if d.MinChars < 0 {
			v.errorf("slotdefs.json: %s has negative min_chars", key)
		}
	}
}
