package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/teamflow/task"
)

func result(agent, stance string, confidence float64) *task.Result {
	return &task.Result{
		TaskID:     "t1",
		AgentID:    agent,
		Status:     task.StatusCompleted,
		Stance:     stance,
		Confidence: confidence,
	}
}

func detect(t *testing.T, r *Resolver, results ...*task.Result) *Conflict {
	t.Helper()
	c := r.Detect("exec-1", "t1", results)
	require.NotNil(t, c)
	return c
}

func TestDetect(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	t.Run("identical stances no conflict", func(t *testing.T) {
		c := r.Detect("exec-1", "t1", []*task.Result{
			result("a1", "yes", 0.9),
			result("a2", "yes", 0.8),
		})
		assert.Nil(t, c)
	})

	t.Run("missing stances no conflict", func(t *testing.T) {
		c := r.Detect("exec-1", "t1", []*task.Result{
			result("a1", "", 0.9),
			result("a2", "yes", 0.8),
		})
		assert.Nil(t, c)
	})

	t.Run("two distinct stances conflict", func(t *testing.T) {
		c := r.Detect("exec-1", "t1", []*task.Result{
			result("a1", "yes", 0.9),
			result("a2", "no", 0.8),
		})
		require.NotNil(t, c)
		assert.Equal(t, StatusPending, c.Status)
		assert.Len(t, c.Positions, 2)
		assert.NotEmpty(t, c.ID)
	})
}

func TestResolveVote(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	t.Run("plurality wins", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "yes", 0.5),
			result("a2", "yes", 0.5),
			result("a3", "no", 0.9),
		)
		res := r.Resolve(c, StrategyVote, "")
		assert.False(t, res.Pending)
		assert.Equal(t, "yes", res.Outcome)
		assert.Equal(t, 2, res.Votes["yes"])
		assert.Equal(t, StatusResolved, c.Status)
	})

	t.Run("count tie breaks on priority sum", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "yes", 0.9),
			result("a2", "no", 0.4),
		)
		res := r.Resolve(c, StrategyVote, "")
		assert.False(t, res.Pending)
		assert.Equal(t, "yes", res.Outcome)
	})

	t.Run("full tie escalates", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "yes", 0.5),
			result("a2", "no", 0.5),
		)
		res := r.Resolve(c, StrategyVote, "")
		assert.True(t, res.Pending)
		assert.Equal(t, StatusEscalated, c.Status)
	})
}

func TestResolveAuthority(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	t.Run("supervisor stance wins", func(t *testing.T) {
		c := detect(t, r,
			result("boss", "no", 0.2),
			result("a1", "yes", 0.9),
			result("a2", "yes", 0.9),
		)
		res := r.Resolve(c, StrategyAuthority, "boss")
		assert.False(t, res.Pending)
		assert.Equal(t, "no", res.Outcome)
		assert.Equal(t, "boss", res.ResolvedBy)
	})

	t.Run("supervisor absent escalates", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "yes", 0.9),
			result("a2", "no", 0.9),
		)
		res := r.Resolve(c, StrategyAuthority, "boss")
		assert.True(t, res.Pending)
	})
}

func TestResolveCompromise(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	t.Run("numeric weighted mean", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "10", 1),
			result("a2", "20", 3),
		)
		res := r.Resolve(c, StrategyCompromise, "")
		assert.False(t, res.Pending)
		assert.Equal(t, "17.5", res.Outcome)
	})

	t.Run("list union ordered by priority", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "alpha, beta", 0.3),
			result("a2", "beta; gamma", 0.9),
		)
		res := r.Resolve(c, StrategyCompromise, "")
		assert.False(t, res.Pending)
		assert.Equal(t, "beta, gamma, alpha", res.Outcome)
	})

	t.Run("plain atoms escalate", func(t *testing.T) {
		c := detect(t, r,
			result("a1", "yes", 0.9),
			result("a2", "no", 0.9),
		)
		res := r.Resolve(c, StrategyCompromise, "")
		assert.True(t, res.Pending)
	})
}

func TestResolveEscalate(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	c := detect(t, r,
		result("a1", "yes", 0.9),
		result("a2", "no", 0.9),
	)
	res := r.Resolve(c, StrategyEscalate, "")
	assert.True(t, res.Pending)
	assert.Equal(t, StrategyEscalate, res.Strategy)
	assert.Equal(t, StatusEscalated, c.Status)
}
