// Package scenegraph models a scenario as a directed graph of narrative
// nodes with guard-gated edges, and answers which branches are currently
// reachable for a given game state.
package scenegraph

import (
	"fmt"
	"sort"
)

// MaxFanOut is the out-degree above which lint flags a node. High fan-out
// is legal but usually means an authoring mistake.
const MaxFanOut = 6

// Node is a single narrative beat in a scenario.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Kind  string `json:"kind,omitempty"` // "scene", "beat", "ending"
}

// Edge connects two nodes. An empty Guard always passes.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Guard string `json:"guard,omitempty"`
}

// Graph is a scenario's node/edge structure. Built once per scenario
// version and treated as immutable afterwards.
type Graph struct {
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges,omitempty"`
	EntryNode string `json:"entry_node,omitempty"`
}

// Entry returns the traversal start node: the declared entry, or the
// first node when none is declared.
func (g *Graph) Entry() string {
	if g.EntryNode != "" {
		return g.EntryNode
	}
	if len(g.Nodes) > 0 {
		return g.Nodes[0].ID
	}
	return ""
}

// Validate checks structural invariants: unique node ids, edge endpoints
// referring to existing nodes, entry node existing, guards parseable.
// A structural error means the graph must not be stored.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}

	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		ids[n.ID] = true
	}

	if g.EntryNode != "" && !ids[g.EntryNode] {
		return fmt.Errorf("entry node %q does not exist", g.EntryNode)
	}

	for i, e := range g.Edges {
		if !ids[e.From] {
			return fmt.Errorf("edge %d references unknown source node %q", i, e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("edge %d references unknown target node %q", i, e.To)
		}
		if e.Guard != "" {
			if _, err := ParseGuard(e.Guard); err != nil {
				return fmt.Errorf("edge %s -> %s has invalid guard: %w", e.From, e.To, err)
			}
		}
	}

	return nil
}

// Reachable performs a breadth-first traversal from the entry node,
// following an edge only when its guard (if any) evaluates true against
// ctx. The returned node-id slice is sorted; treat it as a set.
//
// Reachability is recomputed per turn because guard inputs (relationship
// stats, flags) change between turns.
func Reachable(g *Graph, ctx GuardContext) []string {
	entry := g.Entry()
	if entry == "" {
		return nil
	}

	out := make(map[string][]Edge, len(g.Edges))
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e)
	}

	visited := map[string]bool{entry: true}
	queue := []string{entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range out[cur] {
			if visited[e.To] {
				continue
			}
			if e.Guard != "" {
				pass, err := EvalGuard(e.Guard, ctx)
				if err != nil || !pass {
					continue
				}
			}
			visited[e.To] = true
			queue = append(queue, e.To)
		}
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lint reports non-fatal structural warnings: orphan nodes, excessive
// fan-out, and cycles. Cycles are warnings rather than errors because
// intentional loops (idle banter, hub scenes) are valid authoring.
func Lint(g *Graph) []string {
	var warnings []string

	incoming := make(map[string]int, len(g.Nodes))
	outDegree := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		incoming[e.To]++
		outDegree[e.From]++
	}

	entry := g.Entry()
	for _, n := range g.Nodes {
		if n.ID != entry && incoming[n.ID] == 0 {
			warnings = append(warnings, fmt.Sprintf("orphan node %q has no incoming edges", n.ID))
		}
		if outDegree[n.ID] > MaxFanOut {
			warnings = append(warnings, fmt.Sprintf("node %q has out-degree %d (max %d)", n.ID, outDegree[n.ID], MaxFanOut))
		}
	}

	if node, ok := findCycle(g); ok {
		warnings = append(warnings, fmt.Sprintf("cycle detected through node %q", node))
	}

	return warnings
}

// findCycle runs a recursion-stack DFS over all nodes and returns one
// node on a cycle, if any exists.
func findCycle(g *Graph) (string, bool) {
	out := make(map[string][]string, len(g.Edges))
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e.To)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		state[id] = inStack
		for _, next := range out[id] {
			switch state[next] {
			case inStack:
				return next, true
			case unvisited:
				if node, found := visit(next); found {
					return node, true
				}
			}
		}
		state[id] = done
		return "", false
	}

	for _, n := range g.Nodes {
		if state[n.ID] == unvisited {
			if node, found := visit(n.ID); found {
				return node, true
			}
		}
	}
	return "", false
}
