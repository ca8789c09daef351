package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedisTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, ttl, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreSaveGet(t *testing.T) {
	t.Parallel()

	s, _ := newRedisTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "running", "debate")))

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "debate", got.Mode)

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreListAndFilter(t *testing.T) {
	t.Parallel()

	s, _ := newRedisTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e2", "running", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e3", "completed", "debate")))

	all, err := s.ListExecutions(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed, err := s.ListExecutions(ctx, ListFilter{Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	parallel, err := s.ListExecutions(ctx, ListFilter{Mode: "parallel"})
	require.NoError(t, err)
	assert.Len(t, parallel, 2)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	s, mr := newRedisTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))
	mr.FastForward(2 * time.Minute)

	_, err := s.GetExecution(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound)

	// listing prunes the stale index entry
	all, err := s.ListExecutions(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisStoreDeleteAndStats(t *testing.T) {
	t.Parallel()

	s, _ := newRedisTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e2", "failed", "parallel")))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalRecords)
	assert.Equal(t, int64(1), stats.RecordsByState["failed"])

	require.NoError(t, s.DeleteExecution(ctx, "e2"))
	assert.ErrorIs(t, s.DeleteExecution(ctx, "e2"), ErrNotFound)
}

func TestRedisStorePing(t *testing.T) {
	t.Parallel()

	s, mr := newRedisTestStore(t, 0)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
