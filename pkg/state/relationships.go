package state

// RelationshipSlice is the conventional slice name for the relationships
// module.
const RelationshipSlice = "relationships"

// Relationship stat names with built-in semantics.
const (
	StatTrust  = "trust"
	StatDesire = "desire"
)

// RelationshipCaps bounds relationship stat application. Values above
// SoftCap are compressed by CompressionRatio before the hard clamp, so
// late-game stats creep rather than jump.
type RelationshipCaps struct {
	SoftCap           float64 `json:"soft_cap"`
	HardCap           float64 `json:"hard_cap"`
	CompressionRatio  float64 `json:"compression_ratio"`
	MinTrustToRomance float64 `json:"min_trust_to_romance"`
}

// DefaultRelationshipCaps are used when the relationships module supplies
// no parameter overrides.
func DefaultRelationshipCaps() RelationshipCaps {
	return RelationshipCaps{
		SoftCap:           8,
		HardCap:           10,
		CompressionRatio:  0.5,
		MinTrustToRomance: 6,
	}
}

// RelationshipStat reads one stat for an NPC from the relationships
// slice. Missing entries read as zero.
func (gs *GameState) RelationshipStat(npcID, stat string) float64 {
	slice, ok := gs.Slices[RelationshipSlice]
	if !ok {
		return 0
	}
	stats, ok := slice[npcID].(map[string]interface{})
	if !ok {
		return 0
	}
	n, _ := stats[stat].(float64)
	return n
}

// ApplyRelationshipDelta applies a stat delta with cap enforcement and
// returns (newValue, appliedDelta). Domain invariants hold here, not just
// at schema validation:
//
//   - desire deltas are zeroed while trust is below the romance gate
//   - results above the soft cap are compressed toward it
//   - results are clamped into [0, hard cap]
func (gs *GameState) ApplyRelationshipDelta(npcID, stat string, delta float64, caps RelationshipCaps) (float64, float64) {
	current := gs.RelationshipStat(npcID, stat)

	if stat == StatDesire && delta > 0 && gs.RelationshipStat(npcID, StatTrust) < caps.MinTrustToRomance {
		return current, 0
	}

	next := current + delta
	if next > caps.SoftCap {
		next = caps.SoftCap + (next-caps.SoftCap)*caps.CompressionRatio
	}
	if next > caps.HardCap {
		next = caps.HardCap
	}
	if next < 0 {
		next = 0
	}

	slice := gs.Slice(RelationshipSlice)
	stats, ok := slice[npcID].(map[string]interface{})
	if !ok {
		stats = make(map[string]interface{})
		slice[npcID] = stats
	}
	stats[stat] = next

	return next, next - current
}
