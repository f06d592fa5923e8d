package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	logger, err := SetupWriter(&buf, "warn", FormatAuto)
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	log.Warn().Str("node", "n1").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "n1", entry["node"])
	assert.Contains(t, entry, "time")
}

func TestSetupWriter_Console(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	logger, err := SetupWriter(&buf, "debug", FormatConsole)
	require.NoError(t, err)
	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestSetupWriter_Errors(t *testing.T) {
	var buf bytes.Buffer
	_, err := SetupWriter(&buf, "loud", FormatJSON)
	assert.Error(t, err)
	_, err = SetupWriter(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
