package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/airos/storage"
	"github.com/PipeOpsHQ/airos/storage/storagetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestMemoryStore_ClockAndIsolation(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	logged, err := s.LogTrace(ctx, storagetest.Trace("run", "n", storage.StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, fixed, logged.Timestamp)

	logged.InputState[0] = 'X'
	history, err := s.RunHistory(ctx, "run")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, json.RawMessage(`{}`), history[0].InputState)
}

func TestMemoryStore_RequiresRunID(t *testing.T) {
	s := New()
	_, err := s.RunHistory(context.Background(), " ")
	assert.Error(t, err)
	_, err = s.RunCost(context.Background(), "")
	assert.Error(t, err)
}

func TestMemoryStore_MirrorKeepsIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	mirrored := storagetest.Trace("run-m", "n", storage.StatusSuccess)
	mirrored.ID = 40
	mirrored.EstimatedCost = 0.5
	require.NoError(t, s.MirrorTrace(ctx, mirrored))
	require.NoError(t, s.MirrorTrace(ctx, mirrored))

	history, err := s.RunHistory(ctx, "run-m")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(40), history[0].ID)

	cost, err := s.RunCost(ctx, "run-m")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cost, 1e-9)

	logged, err := s.LogTrace(ctx, storagetest.Trace("run-m", "n", storage.StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, int64(41), logged.ID)

	assert.ErrorIs(t, s.MirrorTrace(ctx, storagetest.Trace("run-m", "n", storage.StatusSuccess)), storage.ErrInvalidTrace)
}
