package state

import "sort"

// MaxEpisodicNotes caps warm memory. When exceeded, the lowest-salience
// notes are trimmed. Pins are never trimmed.
const MaxEpisodicNotes = 50

// AddMemory appends an episodic note, trimming the lowest-salience
// entries when the cap is exceeded. Returns the keys of trimmed notes.
func (gs *GameState) AddMemory(note MemoryNote) []string {
	gs.Warm.Episodic = append(gs.Warm.Episodic, note)
	if len(gs.Warm.Episodic) <= MaxEpisodicNotes {
		return nil
	}

	// Sort a copy by descending salience, keep the top entries, then
	// restore insertion order among survivors.
	ranked := make([]MemoryNote, len(gs.Warm.Episodic))
	copy(ranked, gs.Warm.Episodic)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Salience > ranked[j].Salience
	})

	keep := make(map[string]bool, MaxEpisodicNotes)
	for _, n := range ranked[:MaxEpisodicNotes] {
		keep[n.Key] = true
	}

	var trimmed []string
	survivors := gs.Warm.Episodic[:0]
	for _, n := range gs.Warm.Episodic {
		if keep[n.Key] {
			survivors = append(survivors, n)
		} else {
			trimmed = append(trimmed, n.Key)
		}
	}
	gs.Warm.Episodic = survivors
	return trimmed
}

// Pin adds a pinned fact if not already present.
func (gs *GameState) Pin(fact string) bool {
	for _, p := range gs.Warm.Pins {
		if p == fact {
			return false
		}
	}
	gs.Warm.Pins = append(gs.Warm.Pins, fact)
	return true
}
