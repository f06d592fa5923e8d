package sentinel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResource = "contract.json"

// Schema validates values against a JSON Schema document.
type Schema struct {
	doc      map[string]any
	compiled *jsonschema.Schema
}

// NewSchema compiles doc. The document is copied, so later mutation of doc
// has no effect on the contract.
func NewSchema(doc map[string]any) (*Schema, error) {
	if doc == nil {
		return nil, fmt.Errorf("schema document is required")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	compiled, err := compileSchema(raw)
	if err != nil {
		return nil, err
	}
	var copied map[string]any
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("failed to copy schema: %w", err)
	}
	return &Schema{doc: copied, compiled: compiled}, nil
}

// MustSchema is NewSchema that panics on error; intended for package-level
// contract definitions.
func MustSchema(doc map[string]any) *Schema {
	s, err := NewSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Validate(value any) (any, error) {
	generic, err := toGeneric(value)
	if err != nil {
		return nil, err
	}
	if err := s.compiled.Validate(generic); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Schema) Describe() map[string]any {
	return s.doc
}

func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	compiled, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// toGeneric reduces value to the shapes produced by json.Unmarshal into an
// empty interface, which is what the schema validator expects.
func toGeneric(value any) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
		}
		raw = b
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return out, nil
}

var _ Contract = (*Schema)(nil)
