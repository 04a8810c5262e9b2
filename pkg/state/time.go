package state

// TimeBands is the fixed day cycle. Ticks accumulate monotonically; the
// band advances every TicksPerBand ticks and wraps at the end of the day.
var TimeBands = []string{"dawn", "morning", "midday", "evening", "night"}

// TicksPerBand is how many ticks one band lasts.
const TicksPerBand = 4

// AdvanceTime adds ticks and recomputes the band. Returns the previous
// band and the new band.
func (gs *GameState) AdvanceTime(ticks int) (string, string) {
	if ticks < 0 {
		ticks = 0
	}
	prev := gs.TimeBand
	if prev == "" {
		prev = TimeBands[0]
	}

	gs.Ticks += ticks
	idx := (gs.Ticks / TicksPerBand) % len(TimeBands)
	gs.TimeBand = TimeBands[idx]

	return prev, gs.TimeBand
}
