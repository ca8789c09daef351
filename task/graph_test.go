package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphBuilderValidation(t *testing.T) {
	t.Parallel()

	t.Run("empty graph", func(t *testing.T) {
		_, err := NewGraphBuilder().Build()
		assert.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := NewGraphBuilder().Add(&Task{}).Build()
		assert.Error(t, err)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewGraphBuilder().
			Add(&Task{ID: "a"}).
			Add(&Task{ID: "a"}).
			Build()
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := NewGraphBuilder().
			Add(&Task{ID: "a", DependsOn: []string{"ghost"}}).
			Build()
		assert.ErrorContains(t, err, "unknown task")
	})

	t.Run("self dependency", func(t *testing.T) {
		_, err := NewGraphBuilder().
			Add(&Task{ID: "a", DependsOn: []string{"a"}}).
			Build()
		assert.ErrorContains(t, err, "depends on itself")
	})
}

func TestGraphCycleDetection(t *testing.T) {
	t.Parallel()

	t.Run("two node cycle", func(t *testing.T) {
		_, err := NewGraphBuilder().
			Add(&Task{ID: "a", DependsOn: []string{"b"}}).
			Add(&Task{ID: "b", DependsOn: []string{"a"}}).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})

	t.Run("three node cycle behind a chain", func(t *testing.T) {
		_, err := NewGraphBuilder().
			Add(&Task{ID: "root"}).
			Add(&Task{ID: "a", DependsOn: []string{"root", "c"}}).
			Add(&Task{ID: "b", DependsOn: []string{"a"}}).
			Add(&Task{ID: "c", DependsOn: []string{"b"}}).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})

	t.Run("diamond is acyclic", func(t *testing.T) {
		g, err := NewGraphBuilder().
			Add(&Task{ID: "a"}).
			Add(&Task{ID: "b", DependsOn: []string{"a"}}).
			Add(&Task{ID: "c", DependsOn: []string{"a"}}).
			Add(&Task{ID: "d", DependsOn: []string{"b", "c"}}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 4, g.Len())
		assert.ElementsMatch(t, []string{"b", "c"}, g.Dependents("a"))
		assert.ElementsMatch(t, []string{"b", "c", "d"}, g.TransitiveDependents("a"))
	})
}

func TestGraphBuilderCopiesTasks(t *testing.T) {
	t.Parallel()

	src := &Task{ID: "a", Priority: 1}
	g, err := NewGraphBuilder().Add(src).Build()
	require.NoError(t, err)

	src.Priority = 99
	stored, ok := g.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, stored.Priority)
}
