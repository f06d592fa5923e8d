package sentinel

import (
	"fmt"
	"sort"
)

// CheckFunc is a hand-written validation routine.
type CheckFunc func(value any) (any, error)

type funcContract struct {
	describe map[string]any
	check    CheckFunc
}

// Func builds a Contract from a check and a description of the shape it
// enforces. A nil description is reported as an empty object schema.
func Func(describe map[string]any, check CheckFunc) Contract {
	if describe == nil {
		describe = map[string]any{"type": "object"}
	}
	return &funcContract{describe: describe, check: check}
}

func (f *funcContract) Validate(value any) (any, error) {
	if f.check == nil {
		return value, nil
	}
	return f.check(value)
}

func (f *funcContract) Describe() map[string]any { return f.describe }

// RequireFields accepts any JSON object that carries every named field.
// The value is returned in its generic map form.
func RequireFields(fields ...string) Contract {
	required := append([]string(nil), fields...)
	sort.Strings(required)
	properties := make(map[string]any, len(required))
	for _, f := range required {
		properties[f] = map[string]any{}
	}
	describe := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	return Func(describe, func(value any) (any, error) {
		generic, err := toGeneric(value)
		if err != nil {
			return nil, err
		}
		obj, ok := generic.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a JSON object, got %T", generic)
		}
		var missing []string
		for _, f := range required {
			if _, ok := obj[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing required fields %v", missing)
		}
		return obj, nil
	})
}
