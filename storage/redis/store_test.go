package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/airos/storage"
	"github.com/PipeOpsHQ/airos/storage/storagetest"
)

func newTestRedisStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "airos-test-" + uuid.NewString()

	s, err := New(addr, WithPrefix(prefix), WithTTL(5*time.Minute))
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		keys, _ := s.client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestRedisStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestRedisStore(t)
	})
}

func TestRedisStore_TraceKeysExpire(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	logged, err := s.LogTrace(ctx, storagetest.Trace("run-ttl", "n", storage.StatusSuccess))
	require.NoError(t, err)

	ttl, err := s.client.TTL(ctx, s.traceKey(logged.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStore_MirrorKeepsIDs(t *testing.T) {
	s := newTestRedisStore(t)
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
}

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
