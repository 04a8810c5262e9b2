package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaValidate(t *testing.T) {
	schema := &Schema{
		Fields: map[string]Field{
			"npc":   {Type: "string", MinLength: 1},
			"stat":  {Type: "string", Enum: []string{"trust", "desire"}},
			"delta": {Type: "number", Min: floatPtr(-5), Max: floatPtr(5)},
			"ticks": {Type: "integer"},
			"tags":  {Type: "array"},
			"meta":  {Type: "object"},
			"done":  {Type: "boolean"},
		},
		Required: []string{"npc", "stat", "delta"},
	}

	tests := []struct {
		name       string
		payload    map[string]interface{}
		wantFields []string
	}{
		{
			"valid payload",
			map[string]interface{}{"npc": "elara", "stat": "trust", "delta": 2.0},
			nil,
		},
		{
			"missing required",
			map[string]interface{}{"npc": "elara"},
			[]string{"stat", "delta"},
		},
		{
			"wrong types",
			map[string]interface{}{"npc": 5.0, "stat": "trust", "delta": "two"},
			[]string{"npc", "delta"},
		},
		{
			"enum violation",
			map[string]interface{}{"npc": "elara", "stat": "fear", "delta": 1.0},
			[]string{"stat"},
		},
		{
			"numeric bounds",
			map[string]interface{}{"npc": "elara", "stat": "trust", "delta": 9.0},
			[]string{"delta"},
		},
		{
			"non-integer",
			map[string]interface{}{"npc": "elara", "stat": "trust", "delta": 1.0, "ticks": 1.5},
			[]string{"ticks"},
		},
		{
			"unexpected field",
			map[string]interface{}{"npc": "elara", "stat": "trust", "delta": 1.0, "mood": "sly"},
			[]string{"mood"},
		},
		{
			"collects every violation",
			map[string]interface{}{"stat": "fear", "delta": 9.0, "mood": "sly"},
			[]string{"npc", "stat", "delta", "mood"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := schema.Validate(tt.payload)

			var got []string
			for _, e := range errs {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestSchemaAllowExtra(t *testing.T) {
	schema := &Schema{
		Fields:     map[string]Field{"key": {Type: "string", MinLength: 1}},
		Required:   []string{"key"},
		AllowExtra: true,
	}

	errs := schema.Validate(map[string]interface{}{"key": "elara", "mood": "sly", "trust": 5.0})
	assert.Empty(t, errs, "extra fields must pass when AllowExtra is set")
}

func TestSchemaStringLengths(t *testing.T) {
	schema := &Schema{
		Fields: map[string]Field{"label": {Type: "string", MinLength: 2, MaxLength: 5}},
	}

	assert.Empty(t, schema.Validate(map[string]interface{}{"label": "abc"}))
	assert.Len(t, schema.Validate(map[string]interface{}{"label": "a"}), 1)
	assert.Len(t, schema.Validate(map[string]interface{}{"label": "abcdef"}), 1)
}
