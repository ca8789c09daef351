package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func record(id, status, mode string) *ExecutionRecord {
	return &ExecutionRecord{
		ID:     id,
		Name:   "team-" + id,
		Mode:   mode,
		Status: status,
	}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(zaptest.NewLogger(t))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "running", "parallel")))

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.SaveExecution(ctx, &ExecutionRecord{}), ErrInvalidInput)
	assert.ErrorIs(t, s.SaveExecution(ctx, nil), ErrInvalidInput)
}

func TestMemoryStoreUpsert(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(zaptest.NewLogger(t))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "running", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)
}

func TestMemoryStoreList(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(zaptest.NewLogger(t), WithMemoryClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e1", "completed", "parallel")))
	require.NoError(t, s.SaveExecution(ctx, record("e2", "running", "sequential")))
	require.NoError(t, s.SaveExecution(ctx, record("e3", "completed", "sequential")))

	all, err := s.ListExecutions(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// most recently updated first
	assert.Equal(t, "e3", all[0].ID)

	completed, err := s.ListExecutions(ctx, ListFilter{Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	seq, err := s.ListExecutions(ctx, ListFilter{Mode: "sequential", Limit: 1})
	require.NoError(t, err)
	require.Len(t, seq, 1)
	assert.Equal(t, "e3", seq[0].ID)

	paged, err := s.ListExecutions(ctx, ListFilter{Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestMemoryStoreDeleteAndCleanup(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	s := NewMemoryStore(zaptest.NewLogger(t), WithMemoryClock(func() time.Time { return clock }))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("old", "completed", "parallel")))
	clock = clock.Add(time.Hour)
	require.NoError(t, s.SaveExecution(ctx, record("fresh", "completed", "parallel")))

	removed, err := s.Cleanup(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.GetExecution(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteExecution(ctx, "fresh"))
	assert.ErrorIs(t, s.DeleteExecution(ctx, "fresh"), ErrNotFound)
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(zaptest.NewLogger(t))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(context.Background()), ErrStoreClosed)
	assert.ErrorIs(t, s.SaveExecution(context.Background(), record("e", "x", "y")), ErrStoreClosed)
}

func TestRetryConfigCalculateBackoff(t *testing.T) {
	t.Parallel()

	c := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, c.CalculateBackoff(0))
	assert.Equal(t, 200*time.Millisecond, c.CalculateBackoff(1))
	assert.Equal(t, 400*time.Millisecond, c.CalculateBackoff(2))
	// capped at MaxBackoff
	assert.Equal(t, time.Second, c.CalculateBackoff(10))
	// negative attempts clamp to zero
	assert.Equal(t, 100*time.Millisecond, c.CalculateBackoff(-1))
}

func TestNewStoreFactory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	s, err := NewStore(ctx, StoreConfig{Type: StoreTypeMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	_ = s.Close()

	s, err = NewStore(ctx, StoreConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	_ = s.Close()

	_, err = NewStore(ctx, StoreConfig{Type: "etcd"}, logger)
	assert.Error(t, err)
}
