// Package budget enforces a token ceiling on linearized turn sections.
//
// Token estimation is a fixed character ratio rather than a model
// tokenizer, so the same input always produces the same trim decisions
// regardless of which model backend serves the turn.
package budget

import (
	"fmt"
	"sort"

	"github.com/talecraft/turnengine/pkg/packet"
)

const (
	// CharsPerToken is the fixed estimation ratio.
	CharsPerToken = 4

	// TrimMarker is appended to any section whose tail was removed, so
	// downstream consumers can detect partial content.
	TrimMarker = "… [[trimmed]]"

	// ReportVersion identifies the persisted report format.
	ReportVersion = 1
)

// trimTiers lists categories in the order they are trimmed. Earlier tiers
// lose content first. Core is absent: it is never trimmed.
var trimTiers = [][]packet.Category{
	{packet.CategoryInput, packet.CategoryState, packet.CategoryNPCs, packet.CategoryScenario},
	{packet.CategoryModules},
	{packet.CategoryWorld},
	{packet.CategoryRuleset},
}

// Trim records content removed from one section.
type Trim struct {
	Key           string `json:"key"`
	RemovedChars  int    `json:"removedChars"`
	RemovedTokens int    `json:"removedTokens"`
}

// Report is the audit record of one budget pass. Immutable once created.
type Report struct {
	Version      int      `json:"version"`
	TokensBefore int      `json:"before"`
	TokensAfter  int      `json:"after"`
	Trims        []Trim   `json:"trims"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Result pairs the (possibly trimmed) sections with their report.
type Result struct {
	Sections []packet.LinearSection
	Report   Report
}

// EstimateTokens returns the deterministic token estimate for a string.
func EstimateTokens(s string) int {
	n := 0
	for range s {
		n++
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateSections returns the total token estimate for a section list.
func EstimateSections(sections []packet.LinearSection) int {
	total := 0
	for _, s := range sections {
		total += EstimateTokens(s.Text)
	}
	return total
}

// Apply trims sections to fit maxTokens. Section order is preserved; only
// text changes. A maxTokens of zero or less means no ceiling.
func Apply(sections []packet.LinearSection, maxTokens int) Result {
	out := make([]packet.LinearSection, len(sections))
	copy(out, sections)

	before := EstimateSections(out)
	report := Report{
		Version:      ReportVersion,
		TokensBefore: before,
		TokensAfter:  before,
		Trims:        []Trim{},
	}

	if maxTokens <= 0 || before <= maxTokens {
		return Result{Sections: out, Report: report}
	}

	for _, tier := range trimTiers {
		if report.TokensAfter <= maxTokens {
			break
		}
		for _, idx := range trimOrder(out, tier) {
			need := report.TokensAfter - maxTokens
			if need <= 0 {
				break
			}
			trim, ok := trimSection(&out[idx], need)
			if !ok {
				continue
			}
			report.TokensAfter -= trim.RemovedTokens
			report.Trims = append(report.Trims, trim)
		}
	}

	if report.TokensAfter > maxTokens {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"content still exceeds budget after exhaustive trimming: %d tokens over ceiling %d",
			report.TokensAfter-maxTokens, maxTokens))
	}

	return Result{Sections: out, Report: report}
}

// trimOrder returns the indices of sections in the given tier, ordered by
// trim precedence: non-must-keep before must-keep, then ascending slot
// priority, then original position.
func trimOrder(sections []packet.LinearSection, tier []packet.Category) []int {
	inTier := make(map[packet.Category]bool, len(tier))
	for _, c := range tier {
		inTier[c] = true
	}

	var idxs []int
	for i, s := range sections {
		if inTier[s.Category] {
			idxs = append(idxs, i)
		}
	}

	sort.SliceStable(idxs, func(a, b int) bool {
		sa, sb := sections[idxs[a]], sections[idxs[b]]
		if mustKeep(sa) != mustKeep(sb) {
			return !mustKeep(sa)
		}
		return priority(sa) < priority(sb)
	})
	return idxs
}

func mustKeep(s packet.LinearSection) bool {
	return s.Slot != nil && s.Slot.MustKeep
}

func priority(s packet.LinearSection) int {
	if s.Slot == nil {
		return 0
	}
	return s.Slot.Priority
}

// trimSection removes up to needTokens worth of trailing content from a
// section, respecting its min_chars floor. Returns false when nothing can
// be removed.
func trimSection(s *packet.LinearSection, needTokens int) (Trim, bool) {
	runes := []rune(s.Text)
	floor := 0
	if s.Slot != nil && s.Slot.MinChars > 0 {
		floor = s.Slot.MinChars
	}

	removable := len(runes) - floor
	if removable <= 0 {
		return Trim{}, false
	}

	// Overshoot by the marker length so appending the marker does not eat
	// the savings.
	want := needTokens*CharsPerToken + len([]rune(TrimMarker))
	if want > removable {
		want = removable
	}

	beforeTokens := EstimateTokens(s.Text)
	newText := string(runes[:len(runes)-want]) + TrimMarker

	removed := beforeTokens - EstimateTokens(newText)
	if removed <= 0 {
		// Marker cost swallows the savings; leave the section alone.
		return Trim{}, false
	}
	s.Text = newText

	return Trim{
		Key:           s.Key,
		RemovedChars:  want,
		RemovedTokens: removed,
	}, true
}
