package sentinel

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answer struct {
	X     int    `json:"x"`
	Notes string `json:"notes,omitempty"`
}

func TestSentinel_NoContractIsIdentity(t *testing.T) {
	s := New(nil)
	value := map[string]any{"anything": []int{1, 2}}
	out, err := s.Validate(value)
	require.NoError(t, err)
	assert.Equal(t, value, out)
	assert.Nil(t, s.Contract())
}

func TestSentinel_WrapsFailuresWithMarker(t *testing.T) {
	s := New(RequireFields("x"))
	_, err := s.Validate(map[string]any{"y": 1})
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, strings.Contains(err.Error(), Marker))
	assert.True(t, IsValidationFailure(err))
	assert.Contains(t, err.Error(), "missing required fields [x]")
}

func TestIsValidationFailure_MatchesTypeOnly(t *testing.T) {
	wrapped := fmt.Errorf("node: %w", &ValidationError{Cause: errors.New("bad")})
	assert.True(t, IsValidationFailure(wrapped))

	assert.False(t, IsValidationFailure(errors.New("upstream: "+Marker+": bad")))
	assert.False(t, IsValidationFailure(errors.New("boom")))
	assert.False(t, IsValidationFailure(nil))
}

func TestSchema_ValidatesDocument(t *testing.T) {
	c, err := NewSchema(map[string]any{
		"type":     "object",
		"required": []any{"x"},
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
	})
	require.NoError(t, err)

	out, err := New(c).Validate(map[string]any{"x": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 3}, out)

	_, err = New(c).Validate(map[string]any{"x": "three"})
	require.Error(t, err)
	assert.True(t, IsValidationFailure(err))

	assert.Equal(t, "object", c.Describe()["type"])
}

func TestSchema_RejectsInvalidDocument(t *testing.T) {
	_, err := NewSchema(map[string]any{"type": 12})
	assert.Error(t, err)
	_, err = NewSchema(nil)
	assert.Error(t, err)
}

func TestStruct_DecodesIntoType(t *testing.T) {
	c, err := NewStruct[answer]()
	require.NoError(t, err)

	out, err := c.Validate(map[string]any{"x": 7, "extra": true})
	require.NoError(t, err)
	assert.Equal(t, answer{X: 7}, out)

	_, err = New(c).Validate(map[string]any{"notes": "no x"})
	require.Error(t, err)
	assert.True(t, IsValidationFailure(err))

	doc := c.Describe()
	assert.Equal(t, "object", doc["type"])
	assert.Contains(t, doc["required"], "x")
}

func TestRequireFields_AcceptsStructs(t *testing.T) {
	out, err := RequireFields("x").Validate(answer{X: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, out)

	_, err = RequireFields("x").Validate("not an object")
	assert.Error(t, err)
}

func TestFunc_NilCheckPassesThrough(t *testing.T) {
	c := Func(nil, nil)
	out, err := c.Validate(42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, map[string]any{"type": "object"}, c.Describe())
}
