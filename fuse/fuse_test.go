package fuse

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	state := map[string]any{"a": 1, "nested": map[string]any{"b": []any{1, "two", nil}}}
	assert.Equal(t, Fingerprint(state), Fingerprint(state))
}

func TestFingerprint_KeyOrderIndependent(t *testing.T) {
	first := json.RawMessage(`{"a":1,"b":{"x":true,"y":[1,2]}}`)
	second := json.RawMessage(`{"b":{"y":[1,2],"x":true},"a":1}`)
	assert.Equal(t, Fingerprint(first), Fingerprint(second))

	m1 := map[string]any{"first": 1, "second": 2}
	m2 := map[string]any{"second": 2, "first": 1}
	assert.Equal(t, Fingerprint(m1), Fingerprint(m2))
}

func TestFingerprint_DistinguishesValues(t *testing.T) {
	assert.NotEqual(t, Fingerprint(map[string]any{"a": 1}), Fingerprint(map[string]any{"a": 2}))
	assert.NotEqual(t, Fingerprint("1"), Fingerprint(1))
}

func TestFingerprint_NumberForms(t *testing.T) {
	assert.Equal(t, Fingerprint(map[string]any{"n": 1}), Fingerprint(map[string]any{"n": 1.0}))
	assert.Equal(t, Fingerprint(json.RawMessage(`{"n":1.50}`)), Fingerprint(map[string]any{"n": 1.5}))
}

func TestFingerprint_StructMatchesMap(t *testing.T) {
	type payload struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	assert.Equal(t, Fingerprint(payload{A: 1, B: "x"}), Fingerprint(map[string]any{"b": "x", "a": 1}))
}

func TestFingerprintJSON_AgreesWithFingerprint(t *testing.T) {
	state := map[string]any{"query": "weather", "page": 2}
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(state), FingerprintJSON(raw))
}

func TestFingerprint_RawMessageAgreesWithFingerprintJSON(t *testing.T) {
	for _, raw := range []string{
		`{"score":1.5,"label":"a"}`,
		`"map[score:NaN]"`,
		`"map[f:0x4b2c10]"`,
		`null`,
	} {
		assert.Equal(t, FingerprintJSON([]byte(raw)), Fingerprint(json.RawMessage(raw)), raw)
	}
}

func TestFingerprint_UnencodableFallsBack(t *testing.T) {
	ch := make(chan int)
	assert.NotEmpty(t, Fingerprint(ch))
	assert.Equal(t, Fingerprint(ch), Fingerprint(ch))
}

func TestCanonical_SortsAndNormalizes(t *testing.T) {
	out, err := Canonical(map[string]any{"b": "<tag>", "a": "café"})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"café\",\"b\":\"<tag>\"}", string(out))
}

func TestCheck_TripsAtLimit(t *testing.T) {
	f := New(3)
	state := map[string]any{"a": 1}
	fp := Fingerprint(state)

	require.NoError(t, f.Check(nil, state))
	require.NoError(t, f.Check([]string{fp, fp}, state))

	err := f.Check([]string{fp, fp, fp}, state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoopDetected))

	var loopErr *LoopError
	require.True(t, errors.As(err, &loopErr))
	assert.Equal(t, 3, loopErr.Count)
	assert.Equal(t, 3, loopErr.Limit)
	assert.Equal(t, state, loopErr.State)
	assert.Contains(t, err.Error(), "Fuse Tripped")
}

func TestCheck_DifferingStatesNeverTrip(t *testing.T) {
	f := New(3)
	history := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		history = append(history, Fingerprint(map[string]any{"i": i}))
	}
	assert.NoError(t, f.Check(history, map[string]any{"i": 1000}))
}

func TestNew_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(0).Limit())
	assert.Equal(t, DefaultLimit, New(-4).Limit())
	assert.Equal(t, 5, New(5).Limit())
}
