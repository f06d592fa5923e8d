package sentinel

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

// Struct validates values against the shape of the Go type T. The schema is
// reflected from T's json tags: fields without omitempty are required and
// unknown fields are tolerated. A valid value is returned decoded as T.
type Struct[T any] struct {
	doc      map[string]any
	compiled *santhosh.Schema
}

// NewStruct reflects T into a JSON Schema and compiles it.
func NewStruct[T any]() (*Struct[T], error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	reflected := r.Reflect(new(T))
	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reflected schema: %w", err)
	}
	compiled, err := compileSchema(raw)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode reflected schema: %w", err)
	}
	return &Struct[T]{doc: doc, compiled: compiled}, nil
}

// MustStruct is NewStruct that panics on error.
func MustStruct[T any]() *Struct[T] {
	s, err := NewStruct[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Struct[T]) Validate(value any) (any, error) {
	generic, err := toGeneric(value)
	if err != nil {
		return nil, err
	}
	if err := s.compiled.Validate(generic); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("value does not decode as %T: %w", out, err)
	}
	return out, nil
}

func (s *Struct[T]) Describe() map[string]any {
	return s.doc
}
