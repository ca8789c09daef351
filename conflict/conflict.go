// Package conflict detects disagreements between agent positions and
// resolves them through pluggable strategies.
package conflict

import "time"

// Strategy 冲突解决策略
type Strategy string

const (
	// StrategyVote 多数表决，平票比较立场优先级，仍平则升级
	StrategyVote Strategy = "vote"
	// StrategyAuthority 主管立场优先，主管缺席则升级
	StrategyAuthority Strategy = "authority"
	// StrategyCompromise 数值加权平均或列表合并，否则升级
	StrategyCompromise Strategy = "compromise"
	// StrategyEscalate 升级等待外部裁决
	StrategyEscalate Strategy = "escalate"
)

// IsValid 检查策略是否合法
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyVote, StrategyAuthority, StrategyCompromise, StrategyEscalate:
		return true
	}
	return false
}

// ConflictStatus 冲突状态
type ConflictStatus string

const (
	StatusPending   ConflictStatus = "pending"
	StatusResolved  ConflictStatus = "resolved"
	StatusEscalated ConflictStatus = "escalated"
)

// Position 一个智能体对议题的立场
type Position struct {
	AgentID     string   `json:"agent_id"`
	Stance      string   `json:"stance"`
	Arguments   []string `json:"arguments,omitempty"`
	Priority    float64  `json:"priority"`
	Flexibility float64  `json:"flexibility"`
}

// Conflict 一次检测到的立场冲突
type Conflict struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	TaskID      string         `json:"task_id"`
	Topic       string         `json:"topic,omitempty"`
	Positions   []Position     `json:"positions"`
	DetectedAt  time.Time      `json:"detected_at"`
	Status      ConflictStatus `json:"status"`
}

// Resolution 冲突的裁决结果。Pending 为 true 表示等待外部裁决。
type Resolution struct {
	ConflictID string         `json:"conflict_id"`
	Strategy   Strategy       `json:"strategy"`
	Outcome    string         `json:"outcome,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Votes      map[string]int `json:"votes,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	ResolvedAt time.Time      `json:"resolved_at"`
	Pending    bool           `json:"pending"`
}
