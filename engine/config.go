// Package engine implements the orchestration core: one scheduler loop
// driving mode-specific dispatch, assignment, conflict handling, recovery
// and event streaming over a task graph.
package engine

import (
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/conflict"
	"github.com/BaSui01/teamflow/task"
	"github.com/BaSui01/teamflow/types"
)

// Mode 编排模式（封闭集合）
type Mode string

const (
	ModeSequential   Mode = "sequential"
	ModeParallel     Mode = "parallel"
	ModePipeline     Mode = "pipeline"
	ModeHierarchical Mode = "hierarchical"
	ModeDebate       Mode = "debate"
	ModeExpertPanel  Mode = "expert_panel"
	ModeAuction      Mode = "auction"
	ModeBlackboard   Mode = "blackboard"
	ModeConsensus    Mode = "consensus"
)

// dispatchKind 决定任务如何派发
type dispatchKind int

const (
	// dispatchSingle 每个任务派发给一个智能体
	dispatchSingle dispatchKind = iota
	// dispatchFanOut 每个任务扇出到全部智能体
	dispatchFanOut
)

// completionKind 决定扇出结果如何汇聚
type completionKind int

const (
	// completionSingle 单智能体结果即任务结果
	completionSingle completionKind = iota
	// completionReconcile 立场经冲突裁决后汇聚
	completionReconcile
	// completionMerge 各方贡献合并为一个结果
	completionMerge
	// completionFirstSuccess 首个成功结果获胜，其余取消
	completionFirstSuccess
)

// modeSpec 配置期解析出的模式规格，供唯一的调度循环消费
type modeSpec struct {
	dispatch          dispatchKind
	completion        completionKind
	defaultAssignment task.StrategyName
	defaultConflict   conflict.Strategy
	// concurrency 覆盖 MaxConcurrency；0 表示使用配置值
	concurrency     int
	minAgents       int
	needsSupervisor bool
	needsTools      bool
}

var modeSpecs = map[Mode]modeSpec{
	ModeSequential: {
		dispatch:          dispatchSingle,
		completion:        completionSingle,
		defaultAssignment: task.StrategySkillMatch,
		defaultConflict:   conflict.StrategyVote,
		concurrency:       1,
		minAgents:         1,
	},
	ModeParallel: {
		dispatch:          dispatchSingle,
		completion:        completionSingle,
		defaultAssignment: task.StrategySkillMatch,
		defaultConflict:   conflict.StrategyVote,
		minAgents:         1,
	},
	ModePipeline: {
		dispatch:          dispatchSingle,
		completion:        completionSingle,
		defaultAssignment: task.StrategySkillMatch,
		defaultConflict:   conflict.StrategyVote,
		minAgents:         1,
	},
	ModeHierarchical: {
		dispatch:          dispatchSingle,
		completion:        completionSingle,
		defaultAssignment: task.StrategySkillMatch,
		defaultConflict:   conflict.StrategyAuthority,
		minAgents:         1,
		needsSupervisor:   true,
	},
	ModeDebate: {
		dispatch:        dispatchFanOut,
		completion:      completionReconcile,
		defaultConflict: conflict.StrategyVote,
		minAgents:       2,
	},
	ModeExpertPanel: {
		dispatch:        dispatchFanOut,
		completion:      completionMerge,
		defaultConflict: conflict.StrategyCompromise,
		minAgents:       2,
	},
	ModeAuction: {
		dispatch:          dispatchSingle,
		completion:        completionSingle,
		defaultAssignment: task.StrategyAuction,
		defaultConflict:   conflict.StrategyVote,
		minAgents:         1,
		needsTools:        true,
	},
	ModeBlackboard: {
		dispatch:        dispatchFanOut,
		completion:      completionFirstSuccess,
		defaultConflict: conflict.StrategyVote,
		minAgents:       1,
	},
	ModeConsensus: {
		dispatch:        dispatchFanOut,
		completion:      completionReconcile,
		defaultConflict: conflict.StrategyVote,
		minAgents:       2,
	},
}

// TeamConfiguration 一次团队执行的完整配置。
// Start 时深拷贝，之后不可变；中途变更需要开启新执行。
type TeamConfiguration struct {
	Name             string                `json:"name" yaml:"name"`
	Mode             Mode                  `json:"mode" yaml:"mode"`
	AgentIDs         []string              `json:"agent_ids" yaml:"agent_ids"`
	SupervisorID     string                `json:"supervisor_id,omitempty" yaml:"supervisor_id,omitempty"`
	Tasks            []*task.Task          `json:"tasks" yaml:"tasks"`
	Assignment       task.StrategyName     `json:"assignment,omitempty" yaml:"assignment,omitempty"`
	DependencyPolicy task.DependencyPolicy `json:"dependency_policy,omitempty" yaml:"dependency_policy,omitempty"`
	ConflictStrategy conflict.Strategy     `json:"conflict_strategy,omitempty" yaml:"conflict_strategy,omitempty"`
	Recovery         RecoveryPolicy        `json:"recovery" yaml:"recovery"`
	MaxConcurrency   int                   `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
	TaskTimeout      time.Duration         `json:"task_timeout,omitempty" yaml:"task_timeout,omitempty"`
	ExecutionTimeout time.Duration         `json:"execution_timeout,omitempty" yaml:"execution_timeout,omitempty"`
	Metadata         map[string]string     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone 深拷贝配置
func (c *TeamConfiguration) Clone() *TeamConfiguration {
	if c == nil {
		return nil
	}
	cp := *c
	cp.AgentIDs = append([]string(nil), c.AgentIDs...)
	cp.Tasks = make([]*task.Task, len(c.Tasks))
	for i, t := range c.Tasks {
		cp.Tasks[i] = t.Clone()
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// spec 返回模式规格；未知模式返回 false
func (c *TeamConfiguration) spec() (modeSpec, bool) {
	s, ok := modeSpecs[c.Mode]
	return s, ok
}

// configError 构造配置校验错误
func configError(format string, args ...any) *types.Error {
	return types.NewError(types.ErrConfigInvalid, fmt.Sprintf(format, args...)).
		WithHTTPStatus(422)
}

// notFoundErr 构造 404 级别的缺失错误
func notFoundErr(msg string) *types.Error {
	return types.NewError(types.ErrNotFound, msg).WithHTTPStatus(404)
}

// validate 同步校验配置；失败时不执行任何任务
func (c *TeamConfiguration) validate(known func(agentID string) bool) (modeSpec, error) {
	spec, ok := c.spec()
	if !ok {
		return modeSpec{}, configError("unknown mode: %s", c.Mode)
	}
	if len(c.AgentIDs) == 0 {
		return modeSpec{}, configError("team has no agents")
	}
	seen := make(map[string]struct{}, len(c.AgentIDs))
	for _, id := range c.AgentIDs {
		if !known(id) {
			return modeSpec{}, configError("unknown agent: %s", id)
		}
		if _, dup := seen[id]; dup {
			return modeSpec{}, configError("duplicate agent: %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(c.AgentIDs) < spec.minAgents {
		return modeSpec{}, configError("mode %s requires at least %d agents, got %d",
			c.Mode, spec.minAgents, len(c.AgentIDs))
	}
	if spec.needsSupervisor {
		if c.SupervisorID == "" {
			return modeSpec{}, configError("mode %s requires a supervisor", c.Mode)
		}
		if _, member := seen[c.SupervisorID]; !member {
			return modeSpec{}, configError("supervisor %s is not a team member", c.SupervisorID)
		}
	}
	if c.SupervisorID != "" {
		if _, member := seen[c.SupervisorID]; !member {
			return modeSpec{}, configError("supervisor %s is not a team member", c.SupervisorID)
		}
	}
	if len(c.Tasks) == 0 {
		return modeSpec{}, configError("team has no tasks")
	}
	if spec.needsTools {
		for _, t := range c.Tasks {
			if len(t.ToolsRequired) == 0 {
				return modeSpec{}, configError("mode %s requires tools on every task, task %s has none", c.Mode, t.ID)
			}
		}
	}
	if c.Assignment != "" {
		if _, err := task.NewAssigner(c.Assignment, nil); err != nil {
			return modeSpec{}, configError("unknown assignment strategy: %s", c.Assignment)
		}
	}
	if c.ConflictStrategy != "" && !c.ConflictStrategy.IsValid() {
		return modeSpec{}, configError("unknown conflict strategy: %s", c.ConflictStrategy)
	}
	if err := c.Recovery.Validate(); err != nil {
		return modeSpec{}, configError("invalid recovery policy: %v", err)
	}
	if c.Recovery.FallbackAgent != "" {
		if _, member := seen[c.Recovery.FallbackAgent]; !member {
			return modeSpec{}, configError("fallback agent %s is not a team member", c.Recovery.FallbackAgent)
		}
	}
	return spec, nil
}

// assignment 返回生效的分配策略
func (c *TeamConfiguration) assignment(spec modeSpec) task.StrategyName {
	if c.Assignment != "" {
		return c.Assignment
	}
	if spec.defaultAssignment != "" {
		return spec.defaultAssignment
	}
	return task.StrategySkillMatch
}

// conflictStrategy 返回生效的冲突策略
func (c *TeamConfiguration) conflictStrategy(spec modeSpec) conflict.Strategy {
	if c.ConflictStrategy != "" {
		return c.ConflictStrategy
	}
	return spec.defaultConflict
}

// concurrency 返回生效的并发上限
func (c *TeamConfiguration) concurrency(spec modeSpec) int {
	if spec.concurrency > 0 {
		return spec.concurrency
	}
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency
	}
	return 4
}
