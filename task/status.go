// Package task defines the task graph, status lifecycle, scheduling and
// assignment strategies.
package task

import "fmt"

// Status 任务状态
type Status string

const (
	// StatusPending 等待依赖满足
	StatusPending Status = "pending"
	// StatusReady 依赖已满足，可被分配
	StatusReady Status = "ready"
	// StatusAssigned 已分配给智能体
	StatusAssigned Status = "assigned"
	// StatusInProgress 执行中
	StatusInProgress Status = "in_progress"
	// StatusCompleted 成功完成（终态）
	StatusCompleted Status = "completed"
	// StatusFailed 失败（终态，除非恢复策略重试）
	StatusFailed Status = "failed"
	// StatusBlocked 因上游失败被阻塞
	StatusBlocked Status = "blocked"
	// StatusCancelled 已取消（终态）
	StatusCancelled Status = "cancelled"
)

// validTransitions 定义合法的状态转换
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusReady, StatusBlocked, StatusCancelled},
	StatusReady:      {StatusAssigned, StatusBlocked, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusReady, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled},
	// failed -> ready: 恢复策略重试路径
	StatusFailed: {StatusReady},
	// blocked -> ready: 阻塞者恢复后重新就绪
	StatusBlocked:   {StatusReady, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 检查状态是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsValid 检查状态是否合法
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	TaskID string
	From   Status
	To     Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("task %s: invalid status transition from %s to %s", e.TaskID, e.From, e.To)
}
