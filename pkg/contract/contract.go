// Package contract defines the fixed structured-output contract the model
// must satisfy and the validator that enforces it.
package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talecraft/turnengine/pkg/action"
)

// Contract ceilings.
const (
	MaxChoices = 5
	MaxActs    = 8
)

// Choice is one player-facing option offered by the model.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Output is the parsed, validated model reply.
//
// Wire format (no other top-level keys are permitted):
//
//	{ "scn": string, "txt": string,
//	  "choices"?: [{"id","label"}], "acts"?: [{"type","data"}],
//	  "val"?: string | null }
type Output struct {
	Scene   string       `json:"scn"`
	Text    string       `json:"txt"`
	Choices []Choice     `json:"choices,omitempty"`
	Acts    []action.Act `json:"acts,omitempty"`
	Val     *string      `json:"val,omitempty"`
}

// allowedKeys is the closed set of top-level keys. Unlike the action
// registry, the output contract has no forward-compatibility escape
// hatch: an unknown key here is a hard error.
var allowedKeys = map[string]bool{
	"scn":     true,
	"txt":     true,
	"choices": true,
	"acts":    true,
	"val":     true,
}

// ExtractObject finds the single top-level JSON object in a raw model
// reply, tolerating prose or code fences around it.
func ExtractObject(raw string) (map[string]interface{}, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object found in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				var obj map[string]interface{}
				if err := json.Unmarshal([]byte(raw[start:i+1]), &obj); err != nil {
					return nil, fmt.Errorf("failed to parse JSON object: %w", err)
				}
				return obj, nil
			}
		}
	}

	return nil, fmt.Errorf("unterminated JSON object in reply")
}

// RepairHint turns collected violations into the natural-language
// instruction appended to a retried prompt. All violations are listed so
// one retry can address every problem.
func RepairHint(violations []string) string {
	var sb strings.Builder
	sb.WriteString("Your previous reply failed validation. Respond again with a single JSON object ")
	sb.WriteString(`using exactly the keys "scn", "txt" and optionally "choices", "acts", "val". `)
	sb.WriteString("Fix every problem listed:\n")
	for i, v := range violations {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, v))
	}
	return sb.String()
}
