// Package action owns the typed action registry: the table mapping action
// type strings to payload schemas, owning state slices and reducer
// functions, plus validation and sequential act interpretation.
package action

// Act is a single declared effect from the model, validated against the
// registry and then discarded. It is stored verbatim only in the audit
// trail of applied acts.
type Act struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}
