package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/teamflow/profile"
)

type stubLoadView map[string]int

func (v stubLoadView) InProgress(agentID string) int { return v[agentID] }

func candidate(id string, tools []string, skills ...profile.Skill) *profile.AgentProfile {
	return &profile.AgentProfile{
		ID:     id,
		Name:   id,
		Tools:  tools,
		Skills: skills,
	}
}

func TestSkillMatchAssigner(t *testing.T) {
	t.Parallel()

	a, err := NewAssigner(StrategySkillMatch, nil)
	require.NoError(t, err)

	candidates := []*profile.AgentProfile{
		candidate("weak", []string{"search"}, profile.Skill{Name: "search", Level: 30}),
		candidate("strong", []string{"search"}, profile.Skill{Name: "search", Level: 90}),
		candidate("no-tool", nil, profile.Skill{Name: "search", Level: 100}),
	}

	picked, err := a.Pick(&Task{ID: "t1", ToolsRequired: []string{"search"}}, candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "strong", picked)
}

func TestSkillMatchNoCapableAgent(t *testing.T) {
	t.Parallel()

	a, err := NewAssigner(StrategySkillMatch, nil)
	require.NoError(t, err)

	candidates := []*profile.AgentProfile{
		candidate("a1", []string{"editor"}),
	}
	_, err = a.Pick(&Task{ID: "t1", ToolsRequired: []string{"search"}}, candidates, nil)
	assert.ErrorIs(t, err, ErrNoCapableAgent)
}

func TestSkillMatchTieBreaksOnPerformance(t *testing.T) {
	t.Parallel()

	a, err := NewAssigner(StrategySkillMatch, nil)
	require.NoError(t, err)

	low := candidate("low", []string{"search"}, profile.Skill{Name: "search", Level: 50})
	low.PerformanceScore = 0.2
	high := candidate("high", []string{"search"}, profile.Skill{Name: "search", Level: 50})
	high.PerformanceScore = 0.9

	picked, err := a.Pick(&Task{ID: "t1", ToolsRequired: []string{"search"}}, []*profile.AgentProfile{low, high}, nil)
	require.NoError(t, err)
	assert.Equal(t, "high", picked)
}

func TestRoundRobinAssigner(t *testing.T) {
	t.Parallel()

	a, err := NewAssigner(StrategyRoundRobin, nil)
	require.NoError(t, err)

	candidates := []*profile.AgentProfile{
		candidate("a1", nil),
		candidate("a2", nil),
		candidate("a3", nil),
	}

	var picks []string
	for i := 0; i < 4; i++ {
		id, err := a.Pick(&Task{ID: "t"}, candidates, nil)
		require.NoError(t, err)
		picks = append(picks, id)
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "a1"}, picks)
}

func TestLoadBalanceAssigner(t *testing.T) {
	t.Parallel()

	a, err := NewAssigner(StrategyLoadBalance, nil)
	require.NoError(t, err)

	candidates := []*profile.AgentProfile{
		candidate("busy", nil),
		candidate("idle", nil),
	}
	view := stubLoadView{"busy": 3, "idle": 0}

	picked, err := a.Pick(&Task{ID: "t"}, candidates, view)
	require.NoError(t, err)
	assert.Equal(t, "idle", picked)

	// ties go to registration order
	picked, err = a.Pick(&Task{ID: "t"}, candidates, stubLoadView{})
	require.NoError(t, err)
	assert.Equal(t, "busy", picked)
}

func TestAuctionAssigner(t *testing.T) {
	t.Parallel()

	t.Run("computed bids favor skill and availability", func(t *testing.T) {
		a, err := NewAssigner(StrategyAuction, nil)
		require.NoError(t, err)

		candidates := []*profile.AgentProfile{
			candidate("skilled-busy", []string{"search"}, profile.Skill{Name: "search", Level: 90}),
			candidate("skilled-idle", []string{"search"}, profile.Skill{Name: "search", Level: 80}),
		}
		view := stubLoadView{"skilled-busy": 4}

		picked, err := a.Pick(&Task{ID: "t", ToolsRequired: []string{"search"}}, candidates, view)
		require.NoError(t, err)
		assert.Equal(t, "skilled-idle", picked)
	})

	t.Run("runner bids override", func(t *testing.T) {
		bids := func(agentID string, _ *Task) (float64, bool) {
			if agentID == "underdog" {
				return 10, true
			}
			return 0, false
		}
		a, err := NewAssigner(StrategyAuction, bids)
		require.NoError(t, err)

		candidates := []*profile.AgentProfile{
			candidate("favorite", []string{"search"}, profile.Skill{Name: "search", Level: 100}),
			candidate("underdog", []string{"search"}, profile.Skill{Name: "search", Level: 10}),
		}
		picked, err := a.Pick(&Task{ID: "t", ToolsRequired: []string{"search"}}, candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, "underdog", picked)
	})

	t.Run("tie goes to earliest bid", func(t *testing.T) {
		bids := func(string, *Task) (float64, bool) { return 1, true }
		a, err := NewAssigner(StrategyAuction, bids)
		require.NoError(t, err)

		candidates := []*profile.AgentProfile{
			candidate("first", nil),
			candidate("second", nil),
		}
		picked, err := a.Pick(&Task{ID: "t"}, candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, "first", picked)
	})
}

func TestNewAssignerUnknownStrategy(t *testing.T) {
	t.Parallel()

	_, err := NewAssigner("telepathy", nil)
	assert.Error(t, err)
}
