package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// DefaultChoiceLabelMax bounds choice labels when no per-locale override
// exists. Locale overrides exist because some locales (e.g. German) run
// long and some UIs truncate hard.
const DefaultChoiceLabelMax = 60

// LocaleRules configures the optional locale checks. An empty Locale
// disables them.
type LocaleRules struct {
	Locale            string         // expected output locale, BCP 47
	ChoiceLabelMaxLen map[string]int // base language -> max label chars
}

// Validator enforces the model output contract. All violations are
// collected rather than short-circuited so the repair hint can address
// every problem in one retry.
type Validator struct {
	rules LocaleRules
}

func NewValidator(rules LocaleRules) *Validator {
	return &Validator{rules: rules}
}

// Validate checks a parsed top-level object against the contract.
// Returns the typed output (nil when structurally unusable) and the full
// violation list.
func (v *Validator) Validate(obj map[string]interface{}) (*Output, []string) {
	var violations []string

	for key := range obj {
		if !allowedKeys[key] {
			violations = append(violations, fmt.Sprintf("unexpected top-level key %q", key))
		}
	}

	scn, ok := obj["scn"].(string)
	if !ok || scn == "" {
		violations = append(violations, `"scn" is required and must be a non-empty string`)
	}
	txt, ok := obj["txt"].(string)
	if !ok || txt == "" {
		violations = append(violations, `"txt" is required and must be a non-empty string`)
	}

	violations = append(violations, v.checkChoices(obj)...)
	violations = append(violations, v.checkActs(obj)...)

	if val, present := obj["val"]; present && val != nil {
		if _, ok := val.(string); !ok {
			violations = append(violations, `"val" must be a string or null`)
		}
	}

	violations = append(violations, v.checkLocale(obj, txt)...)

	if len(violations) > 0 {
		return nil, violations
	}

	// Round-trip into the typed shape now that the structure is known good.
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, []string{fmt.Sprintf("reply could not be re-encoded: %v", err)}
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, []string{fmt.Sprintf("reply does not match the output contract: %v", err)}
	}
	return &out, nil
}

func (v *Validator) checkChoices(obj map[string]interface{}) []string {
	raw, present := obj["choices"]
	if !present {
		return nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		return []string{`"choices" must be an array`}
	}

	var violations []string
	if len(list) > MaxChoices {
		violations = append(violations, fmt.Sprintf(`"choices" has %d entries; at most %d are allowed`, len(list), MaxChoices))
	}

	for i, entry := range list {
		choice, ok := entry.(map[string]interface{})
		if !ok {
			violations = append(violations, fmt.Sprintf("choices[%d] must be an object", i))
			continue
		}
		if id, ok := choice["id"].(string); !ok || id == "" {
			violations = append(violations, fmt.Sprintf(`choices[%d].id is required and must be a non-empty string`, i))
		}
		if label, ok := choice["label"].(string); !ok || label == "" {
			violations = append(violations, fmt.Sprintf(`choices[%d].label is required and must be a non-empty string`, i))
		}
	}
	return violations
}

func (v *Validator) checkActs(obj map[string]interface{}) []string {
	raw, present := obj["acts"]
	if !present {
		return nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		return []string{`"acts" must be an array`}
	}

	var violations []string
	if len(list) > MaxActs {
		violations = append(violations, fmt.Sprintf(`"acts" has %d entries; at most %d are allowed`, len(list), MaxActs))
	}

	for i, entry := range list {
		act, ok := entry.(map[string]interface{})
		if !ok {
			violations = append(violations, fmt.Sprintf("acts[%d] must be an object", i))
			continue
		}
		if t, ok := act["type"].(string); !ok || t == "" {
			violations = append(violations, fmt.Sprintf(`acts[%d].type is required and must be a non-empty string`, i))
		}
		if _, ok := act["data"].(map[string]interface{}); !ok {
			violations = append(violations, fmt.Sprintf(`acts[%d].data is required and must be an object`, i))
		}
	}
	return violations
}

// placeholderRe matches template placeholders that may legitimately
// contain English regardless of output locale.
var placeholderRe = regexp.MustCompile(`\{\{[^}]*\}\}|\{[a-zA-Z_]+\}`)

// englishMarkers are high-frequency English function words. Finding
// several of them in non-English output is treated as language leakage.
var englishMarkers = map[string]bool{
	"the": true, "and": true, "you": true, "your": true, "with": true,
	"that": true, "this": true, "have": true, "from": true, "into": true,
}

const englishMarkerThreshold = 3

func (v *Validator) checkLocale(obj map[string]interface{}, txt string) []string {
	if v.rules.Locale == "" {
		return nil
	}

	tag, err := language.Parse(v.rules.Locale)
	if err != nil {
		return []string{fmt.Sprintf("configured locale %q is not a valid BCP 47 tag", v.rules.Locale)}
	}
	base, _ := tag.Base()

	var violations []string

	maxLabel := DefaultChoiceLabelMax
	if override, ok := v.rules.ChoiceLabelMaxLen[base.String()]; ok {
		maxLabel = override
	}
	if list, ok := obj["choices"].([]interface{}); ok {
		for i, entry := range list {
			choice, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			if label, ok := choice["label"].(string); ok {
				if n := len([]rune(label)); n > maxLabel {
					violations = append(violations, fmt.Sprintf(
						"choices[%d].label is %d characters; locale %s allows at most %d", i, n, base, maxLabel))
				}
			}
		}
	}

	if base.String() != "en" && txt != "" {
		stripped := placeholderRe.ReplaceAllString(txt, " ")
		hits := 0
		for _, word := range strings.Fields(strings.ToLower(stripped)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if englishMarkers[word] {
				hits++
			}
		}
		if hits >= englishMarkerThreshold {
			violations = append(violations, fmt.Sprintf(
				`"txt" appears to contain English but the output locale is %s`, v.rules.Locale))
		}
	}

	return violations
}
