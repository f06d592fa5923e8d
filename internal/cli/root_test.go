package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/airos/analytics"
	"github.com/PipeOpsHQ/airos/storage"
)

// sandbox points the CLI at a fresh sqlite database and isolates it from
// any config or .env in the working directory.
func sandbox(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AIROS_CONFIG", "")
	t.Setenv("AIROS_ENV_FILE", filepath.Join(dir, "none.env"))
	t.Setenv("AIROS_STORE_BACKEND", "sqlite")
	t.Setenv("AIROS_SQLITE_PATH", filepath.Join(dir, "traces.db"))
	t.Setenv("AIROS_FUSE_LIMIT", "")
	t.Setenv("AIROS_LOG_LEVEL", "error")
	t.Setenv("AIROS_LOG_FORMAT", "json")
}

func run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	if code != 0 {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), code
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "airos", cmd.Use)

	for _, name := range []string{"serve", "traces", "stats", "settings", "demo"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, FormatText, format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	sandbox(t)
	_, code := run(t, "--format", "yaml", "stats")
	assert.Equal(t, 1, code)
}

func TestDemoSeedsTraces(t *testing.T) {
	sandbox(t)

	out, code := run(t, "--format", "json", "demo", "--run", "demo-test")
	require.Equal(t, 0, code)
	var demo struct {
		RunID   string       `json:"run_id"`
		Results []demoResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &demo))
	assert.Equal(t, "demo-test", demo.RunID)
	require.Len(t, demo.Results, 3)
	assert.Equal(t, "ok", demo.Results[0].Outcome)
	assert.Equal(t, "ok", demo.Results[1].Outcome)
	assert.Equal(t, "loop", demo.Results[2].Outcome)

	out, code = run(t, "--format", "json", "traces", "--run", "demo-test", "--limit", "50")
	require.Equal(t, 0, code)
	var traces []storage.Trace
	require.NoError(t, json.Unmarshal([]byte(out), &traces))
	// summarize, extract_invoice, and planner twice before the trip plus the trip itself.
	require.Len(t, traces, 5)
	assert.Equal(t, storage.StatusFailedLoop, traces[0].Status)
	assert.Equal(t, "planner", traces[0].NodeID)

	var repaired *storage.Trace
	for i := range traces {
		if traces[i].NodeID == "extract_invoice" {
			repaired = &traces[i]
		}
	}
	require.NotNil(t, repaired)
	assert.Equal(t, storage.StatusRepaired, repaired.Status)
	assert.Equal(t, 1, repaired.RecoveryAttempts)
	assert.Contains(t, repaired.Diagnosis, "Sentinel Validation Failed")

	out, code = run(t, "--format", "json", "stats")
	require.Equal(t, 0, code)
	var report analytics.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, analytics.Counts{TotalRuns: 5, Success: 3, Repaired: 1, Failed: 1}, report.Counts)
	assert.Equal(t, 1, report.Savings.LoopsKilled)

	out, code = run(t, "traces")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "extract_invoice")
	assert.Contains(t, out, "failed_loop")

	out, code = run(t, "stats")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Reliability")
}

func TestSettingsRoundTrip(t *testing.T) {
	sandbox(t)

	out, code := run(t, "settings", "get", storage.SettingCostPerToken)
	require.Equal(t, 0, code)
	assert.Equal(t, "0.000005\n", out)

	_, code = run(t, "settings", "set", storage.SettingCostPerToken, "0.00002")
	require.Equal(t, 0, code)

	out, code = run(t, "--format", "json", "settings", "list")
	require.Equal(t, 0, code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	assert.Equal(t, "0.00002", settings[storage.SettingCostPerToken])
	assert.Equal(t, "25.00", settings[storage.SettingManualLaborCost])

	_, code = run(t, "settings", "get", "unknown_key")
	assert.Equal(t, 1, code)
}

func TestTracesRejectsUnknownStatus(t *testing.T) {
	sandbox(t)
	_, code := run(t, "traces", "--status", "exploded")
	assert.Equal(t, 1, code)
}
