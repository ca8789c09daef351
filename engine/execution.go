package engine

import (
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/conflict"
	"github.com/BaSui01/teamflow/task"
)

// ExecutionStatus 执行状态
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionCancelled ExecutionStatus = "cancelled"
	// ExecutionConflictPending 瞬态：升级的冲突等待外部裁决
	ExecutionConflictPending ExecutionStatus = "conflict_pending"
)

// validExecutionTransitions 执行状态转换表
var validExecutionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending: {ExecutionRunning, ExecutionCancelled},
	ExecutionRunning: {ExecutionCompleted, ExecutionFailed, ExecutionPartial,
		ExecutionCancelled, ExecutionConflictPending},
	ExecutionConflictPending: {ExecutionRunning, ExecutionCancelled, ExecutionPartial},
	ExecutionCompleted:       {},
	ExecutionFailed:          {},
	ExecutionPartial:         {},
	ExecutionCancelled:       {},
}

// CanTransitionExecution 检查执行状态转换是否合法
func CanTransitionExecution(from, to ExecutionStatus) bool {
	for _, s := range validExecutionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 检查是否为终态
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionPartial, ExecutionCancelled:
		return true
	}
	return false
}

// ErrInvalidExecutionTransition 非法执行状态转换
type ErrInvalidExecutionTransition struct {
	ExecutionID string
	From        ExecutionStatus
	To          ExecutionStatus
}

func (e *ErrInvalidExecutionTransition) Error() string {
	return fmt.Sprintf("execution %s: invalid status transition from %s to %s",
		e.ExecutionID, e.From, e.To)
}

// TeamMetrics 聚合一次执行的团队指标
type TeamMetrics struct {
	TasksCompleted     int                `json:"tasks_completed"`
	TasksFailed        int                `json:"tasks_failed"`
	TasksBlocked       int                `json:"tasks_blocked"`
	TasksCancelled     int                `json:"tasks_cancelled"`
	MessagesSent       int                `json:"messages_sent"`
	MessagesDropped    int                `json:"messages_dropped"`
	ConflictsDetected  int                `json:"conflicts_detected"`
	ConflictsResolved  int                `json:"conflicts_resolved"`
	TotalDuration      time.Duration      `json:"total_duration"`
	AgentUtilization   map[string]float64 `json:"agent_utilization,omitempty"`
	AvgTaskDuration    time.Duration      `json:"avg_task_duration"`
	TeamCompatibility  float64            `json:"team_compatibility"`
}

// Execution 一次团队执行的快照视图
type Execution struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Mode        Mode                     `json:"mode"`
	Status      ExecutionStatus          `json:"status"`
	Config      *TeamConfiguration       `json:"config"`
	TaskStatus  map[string]task.Status   `json:"task_status"`
	Results     map[string]*task.Result  `json:"results"`
	Conflicts   []*conflict.Conflict     `json:"conflicts,omitempty"`
	Resolutions []*conflict.Resolution   `json:"resolutions,omitempty"`
	Metrics     TeamMetrics              `json:"metrics"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at,omitempty"`
	Error       string                   `json:"error,omitempty"`
}
