package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTeamMemory(t *testing.T) (*TeamMemory, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	tm := NewTeamMemory(store, "exec-1", []string{"a1", "a2"}, zaptest.NewLogger(t))
	return tm, store
}

func TestTeamMemoryPrivateInvisibleAcrossAgents(t *testing.T) {
	t.Parallel()

	tm, _ := newTeamMemory(t)
	ctx := context.Background()

	_, err := tm.Put(ctx, "a1", PrivateScope("a1"), "secret", "mine", nil, 0)
	require.NoError(t, err)

	// owner reads it
	got, err := tm.Get(ctx, "a1", PrivateScope("a1"), "secret")
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Content)

	// another agent sees absence, not an authorization error
	_, err = tm.Get(ctx, "a2", PrivateScope("a1"), "secret")
	assert.ErrorIs(t, err, ErrNotFound)

	// nor can it write there
	_, err = tm.Put(ctx, "a2", PrivateScope("a1"), "secret", "overwrite", nil, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTeamMemoryTeamScopeVisibleToAll(t *testing.T) {
	t.Parallel()

	tm, _ := newTeamMemory(t)
	ctx := context.Background()

	_, err := tm.Put(ctx, "a1", TeamScope("exec-1"), "plan", "shared", nil, 0)
	require.NoError(t, err)

	got, err := tm.Get(ctx, "a2", TeamScope("exec-1"), "plan")
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Content)

	// a foreign execution's team scope is invisible
	_, err = tm.Get(ctx, "a2", TeamScope("exec-other"), "plan")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTeamMemoryGlobalVisible(t *testing.T) {
	t.Parallel()

	tm, _ := newTeamMemory(t)
	ctx := context.Background()

	_, err := tm.Put(ctx, "a1", GlobalScope(), "fact", "42", nil, 0)
	require.NoError(t, err)

	got, err := tm.Get(ctx, "a2", GlobalScope(), "fact")
	require.NoError(t, err)
	assert.Equal(t, "42", got.Content)
}

func TestTeamMemoryTeardown(t *testing.T) {
	t.Parallel()

	tm, store := newTeamMemory(t)
	ctx := context.Background()

	_, err := tm.Put(ctx, "a1", PrivateScope("a1"), "scratch", "v", nil, 0)
	require.NoError(t, err)
	_, err = tm.PutTeam(ctx, "task:a:output", "result", nil)
	require.NoError(t, err)
	_, err = tm.Put(ctx, "a1", GlobalScope(), "keep", "v", nil, 0)
	require.NoError(t, err)

	require.NoError(t, tm.Teardown(ctx))

	_, err = store.Get(ctx, PrivateScope("a1"), "scratch")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, TeamScope("exec-1"), "task:a:output")
	assert.ErrorIs(t, err, ErrNotFound)

	// global survives teardown
	got, err := store.Get(ctx, GlobalScope(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Content)
}

func TestTeamMemoryKeysVisibility(t *testing.T) {
	t.Parallel()

	tm, _ := newTeamMemory(t)
	ctx := context.Background()

	_, err := tm.Put(ctx, "a1", PrivateScope("a1"), "one", "v", nil, 0)
	require.NoError(t, err)
	_, err = tm.Put(ctx, "a1", PrivateScope("a1"), "two", "v", nil, 0)
	require.NoError(t, err)

	keys, err := tm.Keys(ctx, "a1", PrivateScope("a1"), "*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = tm.Keys(ctx, "a2", PrivateScope("a1"), "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
