package engine

import (
	"context"

	"github.com/BaSui01/teamflow/task"
)

// Invocation 一次智能体任务调用的全部输入。
// Inputs 为上游依赖输出；失败的依赖以显式 nil 出现。
type Invocation struct {
	ExecutionID string         `json:"execution_id"`
	AgentID     string         `json:"agent_id"`
	Task        *task.Task     `json:"task"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Attempt     int            `json:"attempt"`
	Team        *Session       `json:"-"`
}

// Runner 执行智能体任务。推理内部（提示词、模型调用）在引擎之外；
// 引擎只消费结果。
type Runner interface {
	Invoke(ctx context.Context, inv *Invocation) (*task.Result, error)
}

// RunnerFunc 函数式 Runner
type RunnerFunc func(ctx context.Context, inv *Invocation) (*task.Result, error)

// Invoke implements Runner.
func (f RunnerFunc) Invoke(ctx context.Context, inv *Invocation) (*task.Result, error) {
	return f(ctx, inv)
}

// Bidder 可选接口：auction 模式下由 Runner 给出密封报价。
// ok 为 false 时引擎使用计算报价。
type Bidder interface {
	Bid(agentID string, t *task.Task) (bid float64, ok bool)
}

// Delegator 可选接口：hierarchical 模式下由主管挑选执行者。
// 返回空串时回退到技能匹配。
type Delegator interface {
	Delegate(ctx context.Context, supervisorID string, t *task.Task, candidates []string) (string, error)
}

// Reviewer 可选接口：hierarchical 模式下主管复核结果。
// approved 为 false 时任务按失败走恢复策略。
type Reviewer interface {
	Review(ctx context.Context, supervisorID string, result *task.Result) (approved bool, reason string, err error)
}
