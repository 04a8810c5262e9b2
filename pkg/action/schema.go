package action

import (
	"fmt"
	"math"
)

// Schema is a declarative payload schema for one action type. It covers
// the subset of JSON Schema the engine needs: typed fields, required
// lists, string length, enums and numeric bounds. Extra keys are rejected
// unless AllowExtra is set.
type Schema struct {
	Fields     map[string]Field `json:"fields"`
	Required   []string         `json:"required,omitempty"`
	AllowExtra bool             `json:"allow_extra,omitempty"`
}

// Field constrains one payload field.
type Field struct {
	Type      string   `json:"type"` // "string", "number", "integer", "boolean", "object", "array"
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// FieldError is one schema violation, addressed to a specific field so
// repair hints can name the problem precisely.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Validate checks a payload against the schema and returns every
// violation found; it never short-circuits.
func (s *Schema) Validate(payload map[string]interface{}) []FieldError {
	var errs []FieldError

	for _, name := range s.Required {
		if _, ok := payload[name]; !ok {
			errs = append(errs, FieldError{Field: name, Message: "required field is missing"})
		}
	}

	for name, value := range payload {
		field, known := s.Fields[name]
		if !known {
			if !s.AllowExtra {
				errs = append(errs, FieldError{Field: name, Message: "unexpected field"})
			}
			continue
		}
		errs = append(errs, checkField(name, field, value)...)
	}

	return errs
}

func checkField(name string, f Field, value interface{}) []FieldError {
	var errs []FieldError

	switch f.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return []FieldError{{Field: name, Message: "must be a string"}}
		}
		if len(s) < f.MinLength {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("must be at least %d characters", f.MinLength)})
		}
		if f.MaxLength > 0 && len(s) > f.MaxLength {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("must be at most %d characters", f.MaxLength)})
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("must be one of %v", f.Enum)})
		}
	case "number", "integer":
		n, ok := asNumber(value)
		if !ok {
			return []FieldError{{Field: name, Message: "must be a number"}}
		}
		if f.Type == "integer" && n != math.Trunc(n) {
			errs = append(errs, FieldError{Field: name, Message: "must be an integer"})
		}
		if f.Min != nil && n < *f.Min {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("must be >= %g", *f.Min)})
		}
		if f.Max != nil && n > *f.Max {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("must be <= %g", *f.Max)})
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			errs = append(errs, FieldError{Field: name, Message: "must be a boolean"})
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			errs = append(errs, FieldError{Field: name, Message: "must be an object"})
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			errs = append(errs, FieldError{Field: name, Message: "must be an array"})
		}
	default:
		errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("schema declares unknown type %q", f.Type)})
	}

	return errs
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func floatPtr(f float64) *float64 { return &f }
