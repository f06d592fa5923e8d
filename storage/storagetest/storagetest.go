// Package storagetest holds behavior checks shared by every storage backend.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/airos/storage"
)

// Run exercises s against the storage.Store contract. newStore must return
// an empty store; each subtest gets its own.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("LogTraceAssignsIncreasingIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.LogTrace(ctx, Trace("run-a", "node", storage.StatusSuccess))
		require.NoError(t, err)
		second, err := s.LogTrace(ctx, Trace("run-a", "node", storage.StatusSuccess))
		require.NoError(t, err)

		assert.Positive(t, first.ID)
		assert.Greater(t, second.ID, first.ID)
		assert.False(t, first.Timestamp.IsZero())
	})

	t.Run("LogTraceRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LogTrace(context.Background(), storage.Trace{NodeID: "n", Status: storage.StatusSuccess})
		assert.ErrorIs(t, err, storage.ErrInvalidTrace)
		_, err = s.LogTrace(context.Background(), storage.Trace{RunID: "r", NodeID: "n", Status: "weird"})
		assert.ErrorIs(t, err, storage.ErrInvalidTrace)
	})

	t.Run("RunHistoryInInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			tr := Trace("run-h", fmt.Sprintf("node-%d", i), storage.StatusSuccess)
			tr.InputState = json.RawMessage(fmt.Sprintf(`{"step":%d}`, i))
			_, err := s.LogTrace(ctx, tr)
			require.NoError(t, err)
		}
		_, err := s.LogTrace(ctx, Trace("other-run", "node-x", storage.StatusFailed))
		require.NoError(t, err)

		history, err := s.RunHistory(ctx, "run-h")
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i, tr := range history {
			assert.Equal(t, fmt.Sprintf("node-%d", i), tr.NodeID)
			assert.JSONEq(t, fmt.Sprintf(`{"step":%d}`, i), string(tr.InputState))
		}

		empty, err := s.RunHistory(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("RoundTripsTraceFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

		in := storage.Trace{
			RunID:            "run-rt",
			NodeID:           "extract",
			InputState:       json.RawMessage(`{"q":"hi"}`),
			OutputState:      json.RawMessage(`{"x":1}`),
			Status:           storage.StatusRepaired,
			RecoveryAttempts: 1,
			SavedCost:        0.25,
			TokenUsage:       140,
			EstimatedCost:    0.0007,
			Diagnosis:        "Sentinel Validation Failed: missing x",
			DurationMs:       12.5,
			Timestamp:        ts,
		}
		logged, err := s.LogTrace(ctx, in)
		require.NoError(t, err)

		history, err := s.RunHistory(ctx, "run-rt")
		require.NoError(t, err)
		require.Len(t, history, 1)
		got := history[0]
		assert.Equal(t, logged.ID, got.ID)
		assert.Equal(t, storage.StatusRepaired, got.Status)
		assert.Equal(t, 1, got.RecoveryAttempts)
		assert.InDelta(t, 0.25, got.SavedCost, 1e-9)
		assert.Equal(t, 140, got.TokenUsage)
		assert.InDelta(t, 0.0007, got.EstimatedCost, 1e-12)
		assert.Equal(t, in.Diagnosis, got.Diagnosis)
		assert.InDelta(t, 12.5, got.DurationMs, 1e-9)
		assert.True(t, ts.Equal(got.Timestamp), "timestamp %s", got.Timestamp)
		assert.JSONEq(t, `{"q":"hi"}`, string(got.InputState))
		assert.JSONEq(t, `{"x":1}`, string(got.OutputState))
	})

	t.Run("NegativeSavedCostIsClamped", func(t *testing.T) {
		s := newStore(t)
		tr := Trace("run-neg", "n", storage.StatusRepaired)
		tr.SavedCost = -3
		logged, err := s.LogTrace(context.Background(), tr)
		require.NoError(t, err)
		assert.Zero(t, logged.SavedCost)
	})

	t.Run("RunCostSumsEstimatedCost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		cost, err := s.RunCost(ctx, "run-c")
		require.NoError(t, err)
		assert.Zero(t, cost)

		for _, c := range []float64{0.001, 0.002, 0.0005} {
			tr := Trace("run-c", "n", storage.StatusSuccess)
			tr.EstimatedCost = c
			_, err := s.LogTrace(ctx, tr)
			require.NoError(t, err)
		}
		other := Trace("run-d", "n", storage.StatusSuccess)
		other.EstimatedCost = 9
		_, err = s.LogTrace(ctx, other)
		require.NoError(t, err)

		cost, err = s.RunCost(ctx, "run-c")
		require.NoError(t, err)
		assert.InDelta(t, 0.0035, cost, 1e-9)
	})

	t.Run("ListTracesNewestFirstWithFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		statuses := []storage.Status{storage.StatusSuccess, storage.StatusFailed, storage.StatusSuccess, storage.StatusFailedLoop}
		for i, st := range statuses {
			_, err := s.LogTrace(ctx, Trace(fmt.Sprintf("run-%d", i%2), "n", st))
			require.NoError(t, err)
		}

		all, err := s.ListTraces(ctx, storage.ListQuery{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.Greater(t, all[i-1].ID, all[i].ID)
		}

		page, err := s.ListTraces(ctx, storage.ListQuery{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, all[1].ID, page[0].ID)

		byRun, err := s.ListTraces(ctx, storage.ListQuery{RunID: "run-1"})
		require.NoError(t, err)
		assert.Len(t, byRun, 2)

		failed, err := s.ListTraces(ctx, storage.ListQuery{Status: storage.StatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, storage.StatusFailed, failed[0].Status)

		beyond, err := s.ListTraces(ctx, storage.ListQuery{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("Settings", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetSetting(ctx, storage.SettingCostPerToken)
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		v, err := storage.Setting(ctx, s, storage.SettingCostPerToken)
		require.NoError(t, err)
		assert.Equal(t, "0.000005", v)

		require.NoError(t, s.SetSetting(ctx, storage.SettingCostPerToken, "0.00001"))
		require.NoError(t, s.SetSetting(ctx, storage.SettingCostPerToken, "0.00002"))
		v, err = s.GetSetting(ctx, storage.SettingCostPerToken)
		require.NoError(t, err)
		assert.Equal(t, "0.00002", v)

		f, err := storage.FloatSetting(ctx, s, storage.SettingCostPerToken)
		require.NoError(t, err)
		assert.InDelta(t, 0.00002, f, 1e-12)

		all, err := s.ListSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{storage.SettingCostPerToken: "0.00002"}, all)

		effective, err := storage.EffectiveSettings(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, "0.00002", effective[storage.SettingCostPerToken])
		assert.Equal(t, "25.00", effective[storage.SettingManualLaborCost])
		assert.Equal(t, "0.50", effective[storage.SettingInfrastructureRate])
	})

	t.Run("ConcurrentLogTraceKeepsEveryRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const workers, perWorker = 8, 10

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					tr := Trace(fmt.Sprintf("run-%d", w), "n", storage.StatusSuccess)
					tr.InputState = json.RawMessage(fmt.Sprintf(`{"i":%d}`, i))
					if _, err := s.LogTrace(ctx, tr); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for w := 0; w < workers; w++ {
			history, err := s.RunHistory(ctx, fmt.Sprintf("run-%d", w))
			require.NoError(t, err)
			require.Len(t, history, perWorker)
			for i, tr := range history {
				assert.JSONEq(t, fmt.Sprintf(`{"i":%d}`, i), string(tr.InputState))
			}
		}
	})
}

// Trace builds a minimal valid trace.
func Trace(runID, nodeID string, status storage.Status) storage.Trace {
	return storage.Trace{
		RunID:       runID,
		NodeID:      nodeID,
		Status:      status,
		InputState:  json.RawMessage(`{}`),
		OutputState: json.RawMessage(`null`),
	}
}
