package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/teamflow/conflict"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/profile"
	"github.com/BaSui01/teamflow/task"
	"github.com/BaSui01/teamflow/types"
)

const waitTimeout = 5 * time.Second

func testProfile(id string) *profile.AgentProfile {
	return &profile.AgentProfile{
		ID:   id,
		Name: strings.ToUpper(id),
		Role: "worker",
		Skills: []profile.Skill{
			{Name: "analysis", Level: 70, Category: "general"},
		},
		Tools: []string{"search"},
	}
}

func testRegistry(t *testing.T, ids ...string) *profile.Registry {
	t.Helper()
	reg := profile.NewRegistry()
	for _, id := range ids {
		require.NoError(t, reg.Register(testProfile(id)))
	}
	return reg
}

// scriptRunner invokes fn with a per-call counter keyed by task and agent.
type scriptRunner struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, inv *Invocation, call int) (*task.Result, error)
}

func newScriptRunner(fn func(ctx context.Context, inv *Invocation, call int) (*task.Result, error)) *scriptRunner {
	return &scriptRunner{calls: make(map[string]int), fn: fn}
}

func (r *scriptRunner) Invoke(ctx context.Context, inv *Invocation) (*task.Result, error) {
	r.mu.Lock()
	key := inv.Task.ID + "/" + inv.AgentID
	r.calls[key]++
	call := r.calls[key]
	r.mu.Unlock()
	return r.fn(ctx, inv, call)
}

func (r *scriptRunner) callCount(taskID, agentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[taskID+"/"+agentID]
}

func okRunner() *scriptRunner {
	return newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		return &task.Result{Output: "out-" + inv.Task.ID}, nil
	})
}

func newTestEngine(t *testing.T, reg *profile.Registry, runner Runner, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Registry: reg,
		Runner:   runner,
		Logger:   zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}
	eng, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func waitDone(t *testing.T, eng *Engine, id string) *Execution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	exec, err := eng.WaitForExecution(ctx, id)
	require.NoError(t, err)
	return exec
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Runner: okRunner()})
	require.Error(t, err)

	_, err = New(Options{Registry: profile.NewRegistry()})
	require.Error(t, err)
}

func TestStartRejectsCyclicGraph(t *testing.T) {
	t.Parallel()

	runner := okRunner()
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, nil)

	_, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "cyclic",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Tasks: []*task.Task{
			{ID: "t1", DependsOn: []string{"t2"}},
			{ID: "t2", DependsOn: []string{"t1"}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigInvalid, types.GetErrorCode(err))
	// 校验失败时不得执行任何任务
	assert.Zero(t, runner.callCount("t1", "a1"))
	assert.Zero(t, runner.callCount("t2", "a1"))
}

func TestStartValidationErrors(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, testRegistry(t, "a1", "a2"), okRunner(), nil)
	oneTask := []*task.Task{{ID: "t1"}}

	tests := []struct {
		name string
		cfg  *TeamConfiguration
	}{
		{"unknown mode", &TeamConfiguration{Mode: "swarm", AgentIDs: []string{"a1"}, Tasks: oneTask}},
		{"no agents", &TeamConfiguration{Mode: ModeSequential, Tasks: oneTask}},
		{"unknown agent", &TeamConfiguration{Mode: ModeSequential, AgentIDs: []string{"ghost"}, Tasks: oneTask}},
		{"duplicate agent", &TeamConfiguration{Mode: ModeSequential, AgentIDs: []string{"a1", "a1"}, Tasks: oneTask}},
		{"no tasks", &TeamConfiguration{Mode: ModeSequential, AgentIDs: []string{"a1"}}},
		{"debate needs two agents", &TeamConfiguration{Mode: ModeDebate, AgentIDs: []string{"a1"}, Tasks: oneTask}},
		{"hierarchical needs supervisor", &TeamConfiguration{Mode: ModeHierarchical, AgentIDs: []string{"a1"}, Tasks: oneTask}},
		{"supervisor not member", &TeamConfiguration{Mode: ModeHierarchical, AgentIDs: []string{"a1"}, SupervisorID: "a2", Tasks: oneTask}},
		{"auction needs tools", &TeamConfiguration{Mode: ModeAuction, AgentIDs: []string{"a1"}, Tasks: oneTask}},
		{"fallback not member", &TeamConfiguration{Mode: ModeSequential, AgentIDs: []string{"a1"}, Tasks: oneTask,
			Recovery: RecoveryPolicy{OnFailure: RecoveryFallbackAgent, FallbackAgent: "a2"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Start(context.Background(), tc.cfg)
			require.Error(t, err)
			assert.Equal(t, types.ErrConfigInvalid, types.GetErrorCode(err))
		})
	}
}

func TestParallelDiamondCompletes(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inputs := make(map[string]map[string]any)
	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		mu.Lock()
		inputs[inv.Task.ID] = inv.Inputs
		mu.Unlock()
		return &task.Result{Output: "out-" + inv.Task.ID}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1", "a2", "a3"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "diamond",
		Mode:     ModeParallel,
		AgentIDs: []string{"a1", "a2", "a3"},
		Tasks: []*task.Task{
			{ID: "root"},
			{ID: "left", DependsOn: []string{"root"}},
			{ID: "right", DependsOn: []string{"root"}},
			{ID: "join", DependsOn: []string{"left", "right"}},
		},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Len(t, exec.Results, 4)
	for _, res := range exec.Results {
		assert.Equal(t, task.StatusCompleted, res.Status)
	}
	assert.Equal(t, 4, exec.Metrics.TasksCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]any{"left": "out-left", "right": "out-right"}, inputs["join"])
}

func TestFailFastBlocksDependents(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		if inv.Task.ID == "a" {
			return nil, errors.New("boom")
		}
		return &task.Result{Output: "ok"}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "chain",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Tasks: []*task.Task{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
			{ID: "c", DependsOn: []string{"b"}},
		},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionFailed, exec.Status)
	assert.Equal(t, task.StatusFailed, exec.TaskStatus["a"])
	assert.Equal(t, task.StatusBlocked, exec.TaskStatus["b"])
	assert.Equal(t, task.StatusBlocked, exec.TaskStatus["c"])
	// 被阻塞的任务不产生结果，也不会被调用
	assert.Len(t, exec.Results, 1)
	assert.Zero(t, runner.callCount("b", "a1"))
	assert.Equal(t, 1, exec.Metrics.TasksFailed)
	assert.Equal(t, 2, exec.Metrics.TasksBlocked)
}

// Runner 返回非终态视为协议违规，按失败处理而非挂起执行
func TestNonTerminalRunnerStatusFailsTask(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, _ *Invocation, _ int) (*task.Result, error) {
		return &task.Result{Status: task.StatusInProgress, Output: "half-done"}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "misbehaving-runner",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Tasks:    []*task.Task{{ID: "a"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionFailed, exec.Status)
	assert.Equal(t, task.StatusFailed, exec.TaskStatus["a"])
	require.Contains(t, exec.Results, "a")
	assert.Contains(t, exec.Results["a"].Error, "non-terminal status")
}

func TestSkipAndContinuePassesNilInput(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var joinInputs map[string]any
	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		if inv.Task.ID == "flaky" {
			return nil, errors.New("boom")
		}
		if inv.Task.ID == "join" {
			mu.Lock()
			joinInputs = inv.Inputs
			mu.Unlock()
		}
		return &task.Result{Output: "out-" + inv.Task.ID}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1", "a2"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:             "skip",
		Mode:             ModeParallel,
		AgentIDs:         []string{"a1", "a2"},
		DependencyPolicy: task.DependencyPolicySkipAndContinue,
		Tasks: []*task.Task{
			{ID: "flaky"},
			{ID: "solid"},
			{ID: "join", DependsOn: []string{"flaky", "solid"}},
		},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionPartial, exec.Status)
	assert.Equal(t, task.StatusCompleted, exec.TaskStatus["join"])

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, joinInputs)
	// 失败依赖以显式 nil 出现，区别于缺失
	val, present := joinInputs["flaky"]
	assert.True(t, present)
	assert.Nil(t, val)
	assert.Equal(t, "out-solid", joinInputs["solid"])
}

func TestRetryRecoverySucceedsOnSecondAttempt(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, inv *Invocation, call int) (*task.Result, error) {
		if call == 1 {
			return nil, errors.New("transient")
		}
		return &task.Result{Output: "recovered"}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "retry",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Recovery: RecoveryPolicy{OnFailure: RecoveryRetry, MaxRetries: 2},
		Tasks:    []*task.Task{{ID: "t1"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	require.Contains(t, exec.Results, "t1")
	assert.Equal(t, "recovered", exec.Results["t1"].Output)
	assert.Equal(t, 2, exec.Results["t1"].Attempts)
}

func TestRetryRecoveryExhaustsBudget(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		return nil, errors.New("permanent")
	})
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "exhaust",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Recovery: RecoveryPolicy{OnFailure: RecoveryRetry, MaxRetries: 2},
		Tasks:    []*task.Task{{ID: "t1"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionFailed, exec.Status)
	assert.Equal(t, 3, runner.callCount("t1", "a1"))
}

func TestFallbackAgentRecovery(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		if inv.AgentID == "primary" {
			return nil, errors.New("primary down")
		}
		return &task.Result{Output: "from-backup"}, nil
	})
	reg := testRegistry(t, "backup")
	primary := testProfile("primary")
	primary.Skills = []profile.Skill{{Name: "analysis", Level: 95, Category: "general"}}
	require.NoError(t, reg.Register(primary))

	eng := newTestEngine(t, reg, runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "fallback",
		Mode:     ModeParallel,
		AgentIDs: []string{"primary", "backup"},
		Recovery: RecoveryPolicy{OnFailure: RecoveryFallbackAgent, FallbackAgent: "backup"},
		Tasks:    []*task.Task{{ID: "t1", Type: "analysis"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	require.Contains(t, exec.Results, "t1")
	assert.Equal(t, "backup", exec.Results["t1"].AgentID)
	assert.Equal(t, "from-backup", exec.Results["t1"].Output)
}

func TestDebateVoteResolvesPlurality(t *testing.T) {
	t.Parallel()

	stances := map[string]string{"a1": "yes", "a2": "yes", "a3": "no"}
	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		return &task.Result{Stance: stances[inv.AgentID], Confidence: 0.5}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1", "a2", "a3"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "debate",
		Mode:     ModeDebate,
		AgentIDs: []string{"a1", "a2", "a3"},
		Tasks:    []*task.Task{{ID: "motion"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	require.Len(t, exec.Conflicts, 1)
	require.Len(t, exec.Resolutions, 1)
	assert.Equal(t, conflict.StrategyVote, exec.Resolutions[0].Strategy)
	assert.Equal(t, "yes", exec.Resolutions[0].Outcome)
	require.Contains(t, exec.Results, "motion")
	assert.Equal(t, "yes", exec.Results["motion"].Output)
	assert.Equal(t, 1, exec.Metrics.ConflictsDetected)
	assert.Equal(t, 1, exec.Metrics.ConflictsResolved)
}

func TestExpertPanelMergesWithoutConflict(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		// 立场一致，无冲突，各方贡献合并
		return &task.Result{Stance: "agree", Output: "view-" + inv.AgentID, Confidence: 0.7}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1", "a2"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "panel",
		Mode:     ModeExpertPanel,
		AgentIDs: []string{"a1", "a2"},
		Tasks:    []*task.Task{{ID: "review"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Empty(t, exec.Conflicts)
	require.Contains(t, exec.Results, "review")
	merged, ok := exec.Results["review"].Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "view-a1", merged["a1"])
	assert.Equal(t, "view-a2", merged["a2"])
}

func TestBlackboardFirstSuccessWins(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(ctx context.Context, inv *Invocation, _ int) (*task.Result, error) {
		if inv.AgentID == "slow" {
			// 首个成功者出现后其余调用被取消
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &task.Result{Output: "solved-by-" + inv.AgentID}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "fast", "slow"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "blackboard",
		Mode:     ModeBlackboard,
		AgentIDs: []string{"fast", "slow"},
		Tasks:    []*task.Task{{ID: "puzzle"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	require.Contains(t, exec.Results, "puzzle")
	assert.Equal(t, "solved-by-fast", exec.Results["puzzle"].Output)
	assert.Equal(t, "fast", exec.Results["puzzle"].AgentID)
}

func TestEscalatedConflictAwaitsExternalResolution(t *testing.T) {
	t.Parallel()

	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		stance := "yes"
		if inv.AgentID == "a2" {
			stance = "no"
		}
		return &task.Result{Stance: stance, Confidence: 0.5}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1", "a2"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:             "deadlock",
		Mode:             ModeDebate,
		AgentIDs:         []string{"a1", "a2"},
		ConflictStrategy: conflict.StrategyEscalate,
		Tasks:            []*task.Task{{ID: "motion"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exec, err := eng.GetExecution(id)
		return err == nil && exec.Status == ExecutionConflictPending
	}, waitTimeout, 10*time.Millisecond)

	exec, err := eng.GetExecution(id)
	require.NoError(t, err)
	require.Len(t, exec.Conflicts, 1)
	conflictID := exec.Conflicts[0].ID

	// 未知冲突 ID 被拒绝
	err = eng.Resolve(context.Background(), id, "no-such-conflict", &conflict.Resolution{Outcome: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))

	require.NoError(t, eng.Resolve(context.Background(), id, conflictID, &conflict.Resolution{
		Strategy:   conflict.StrategyEscalate,
		Outcome:    "yes, with conditions",
		ResolvedBy: "operator",
	}))

	final := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, final.Status)
	require.Contains(t, final.Results, "motion")
	assert.Equal(t, "yes, with conditions", final.Results["motion"].Output)
	assert.Equal(t, "operator", final.Results["motion"].AgentID)
}

func TestCancelRetainsCompletedResults(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	ctx := context.Background()
	_, err := store.Put(ctx, memory.GlobalScope(), "policy", "keep", nil, 0)
	require.NoError(t, err)

	runner := newScriptRunner(func(runCtx context.Context, inv *Invocation, _ int) (*task.Result, error) {
		if inv.Task.ID == "hang" {
			<-runCtx.Done()
			return nil, runCtx.Err()
		}
		return &task.Result{Output: "done"}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, func(o *Options) {
		o.Memory = store
	})

	id, err := eng.Start(ctx, &TeamConfiguration{
		Name:     "cancel",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Tasks: []*task.Task{
			{ID: "quick"},
			{ID: "hang", DependsOn: []string{"quick"}},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exec, err := eng.GetExecution(id)
		return err == nil && exec.TaskStatus["hang"] == task.StatusInProgress
	}, waitTimeout, 10*time.Millisecond)

	cancelCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	require.NoError(t, eng.Cancel(cancelCtx, id))

	exec, err := eng.GetExecution(id)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, exec.Status)
	// 已完成结果保留，进行中任务取消且无结果
	assert.Equal(t, task.StatusCompleted, exec.TaskStatus["quick"])
	assert.Equal(t, task.StatusCancelled, exec.TaskStatus["hang"])
	assert.Contains(t, exec.Results, "quick")
	assert.NotContains(t, exec.Results, "hang")

	// 重复取消报非法状态
	err = eng.Cancel(ctx, id)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))

	// global 作用域在拆除后存续，执行级作用域被清空
	item, err := store.Get(ctx, memory.GlobalScope(), "policy")
	require.NoError(t, err)
	assert.Equal(t, "keep", item.Content)
	keys, err := store.Keys(ctx, memory.TeamScope(id), "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSubscribeStreamsLifecycleEvents(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		<-gate
		return &task.Result{Output: "ok"}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "events",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Tasks:    []*task.Task{{ID: "t1"}},
	})
	require.NoError(t, err)

	events, cancelSub, err := eng.Subscribe(id)
	require.NoError(t, err)
	defer cancelSub()
	close(gate)

	seen := make(map[EventType]bool)
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				assert.True(t, seen[EventTaskCompleted])
				assert.True(t, seen[EventExecutionFinished])
				return
			}
			assert.Equal(t, id, ev.ExecutionID)
			seen[ev.Type] = true
		case <-deadline:
			t.Fatalf("timed out waiting for events, seen: %v", seen)
		}
	}
}

// 订阅已终态的执行立即得到关闭的通道，而非永久阻塞的流
func TestSubscribeAfterExecutionFinished(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, testRegistry(t, "a1"), okRunner(), nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "late-subscriber",
		Mode:     ModeSequential,
		AgentIDs: []string{"a1"},
		Tasks:    []*task.Task{{ID: "t1"}},
	})
	require.NoError(t, err)
	waitDone(t, eng, id)

	events, cancelSub, err := eng.Subscribe(id)
	require.NoError(t, err)
	defer cancelSub()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("channel for finished execution not closed")
	}
}

func TestGetExecutionUnknown(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, testRegistry(t, "a1"), okRunner(), nil)

	_, err := eng.GetExecution("nope")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))

	err = eng.Cancel(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

// delegatingRunner steers hierarchical assignment to a fixed worker.
type delegatingRunner struct {
	*scriptRunner
	target string
}

func (r *delegatingRunner) Delegate(_ context.Context, _ string, _ *task.Task, _ []string) (string, error) {
	return r.target, nil
}

func TestHierarchicalDelegation(t *testing.T) {
	t.Parallel()

	base := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		return &task.Result{Output: "by-" + inv.AgentID}, nil
	})
	runner := &delegatingRunner{scriptRunner: base, target: "worker2"}
	eng := newTestEngine(t, testRegistry(t, "boss", "worker1", "worker2"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:         "hier",
		Mode:         ModeHierarchical,
		AgentIDs:     []string{"boss", "worker1", "worker2"},
		SupervisorID: "boss",
		Tasks:        []*task.Task{{ID: "t1"}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Equal(t, "worker2", exec.Results["t1"].AgentID)
	// 主管委派而不亲自执行
	assert.Zero(t, base.callCount("t1", "boss"))
}

// biddingRunner places a sealed bid for auction assignment.
type biddingRunner struct {
	*scriptRunner
	bids map[string]float64
}

func (r *biddingRunner) Bid(agentID string, _ *task.Task) (float64, bool) {
	bid, ok := r.bids[agentID]
	return bid, ok
}

func TestAuctionHonorsRunnerBids(t *testing.T) {
	t.Parallel()

	base := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		return &task.Result{Output: "won-by-" + inv.AgentID}, nil
	})
	runner := &biddingRunner{
		scriptRunner: base,
		bids:         map[string]float64{"a1": 0.2, "a2": 0.9},
	}
	eng := newTestEngine(t, testRegistry(t, "a1", "a2"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "auction",
		Mode:     ModeAuction,
		AgentIDs: []string{"a1", "a2"},
		Tasks:    []*task.Task{{ID: "t1", ToolsRequired: []string{"search"}}},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Equal(t, "a2", exec.Results["t1"].AgentID)
}

func TestPipelineMirrorsOutputsToTeamMemory(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var downstream *memory.Item
	runner := newScriptRunner(func(_ context.Context, inv *Invocation, _ int) (*task.Result, error) {
		if inv.Task.ID == "stage2" {
			item, err := inv.Team.MemoryGet(context.Background(), inv.AgentID,
				inv.Team.TeamScope(), "task:stage1:output")
			if err != nil {
				return nil, fmt.Errorf("upstream output missing: %w", err)
			}
			mu.Lock()
			downstream = item
			mu.Unlock()
		}
		return &task.Result{Output: "out-" + inv.Task.ID}, nil
	})
	eng := newTestEngine(t, testRegistry(t, "a1", "a2"), runner, nil)

	id, err := eng.Start(context.Background(), &TeamConfiguration{
		Name:     "pipeline",
		Mode:     ModePipeline,
		AgentIDs: []string{"a1", "a2"},
		Tasks: []*task.Task{
			{ID: "stage1"},
			{ID: "stage2", DependsOn: []string{"stage1"}},
		},
	})
	require.NoError(t, err)

	exec := waitDone(t, eng, id)
	assert.Equal(t, ExecutionCompleted, exec.Status)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, downstream)
	assert.Equal(t, "out-stage1", downstream.Content)
}
