package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/airos/storage/hybrid"
	"github.com/PipeOpsHQ/airos/storage/memory"
	sqlitestore "github.com/PipeOpsHQ/airos/storage/sqlite"
)

func TestFromEnv_SQLite(t *testing.T) {
	t.Setenv("AIROS_STORE_BACKEND", "sqlite")
	t.Setenv("AIROS_SQLITE_PATH", filepath.Join(t.TempDir(), "traces.db"))

	s, err := FromEnv(context.Background())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlitestore.Store{}, s)
}

func TestFromEnv_DefaultsToSQLite(t *testing.T) {
	t.Setenv("AIROS_STORE_BACKEND", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, DefaultSQLitePath, cfg.SQLitePath)
}

func TestFromEnv_HybridFallsBackWhenRedisUnavailable(t *testing.T) {
	t.Setenv("AIROS_STORE_BACKEND", "hybrid")
	t.Setenv("AIROS_SQLITE_PATH", filepath.Join(t.TempDir(), "traces.db"))
	t.Setenv("AIROS_REDIS_ADDR", "127.0.0.1:1")

	s, err := FromEnv(context.Background())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &hybrid.Store{}, s)
}

func TestNew_Memory(t *testing.T) {
	s, err := New(context.Background(), Config{Backend: " Memory "})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)
}

func TestNew_InvalidBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "nope"})
	assert.Error(t, err)
}
