package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType 执行事件类型
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventTaskReady          EventType = "task_ready"
	EventTaskAssigned       EventType = "task_assigned"
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskFailed         EventType = "task_failed"
	EventTaskBlocked        EventType = "task_blocked"
	EventConflictDetected   EventType = "conflict_detected"
	EventConflictResolved   EventType = "conflict_resolved"
	EventExecutionFinished  EventType = "execution_finished"
	EventExecutionCancelled EventType = "execution_cancelled"
)

// Event 一条执行事件。事件在状态变更落地之后发布，
// 订阅者不会观察到未生效变更的事件。
type Event struct {
	ExecutionID string         `json:"execution_id"`
	Type        EventType      `json:"type"`
	TaskID      string         `json:"task_id,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	ConflictID  string         `json:"conflict_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// subscriber 单个订阅者；慢订阅者丢事件，绝不阻塞循环
type subscriber struct {
	ch     chan Event
	closed atomic.Bool
}

// eventBroker 按执行维度管理订阅者
type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber // execution id -> subs
	bufferSize  int
	dropped     atomic.Int64
	logger      *zap.Logger
}

func newEventBroker(bufferSize int, logger *zap.Logger) *eventBroker {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventBroker{
		subscribers: make(map[string][]*subscriber),
		bufferSize:  bufferSize,
		logger:      logger.With(zap.String("component", "event_broker")),
	}
}

// subscribe 注册订阅者，返回事件通道与取消函数
func (b *eventBroker) subscribe(executionID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	b.subscribers[executionID] = append(b.subscribers[executionID], sub)
	b.mu.Unlock()

	cancel := func() {
		if sub.closed.Swap(true) {
			return
		}
		// close 必须持写锁，与 publish 持读锁期间的发送互斥
		b.mu.Lock()
		subs := b.subscribers[executionID]
		for i, s := range subs {
			if s == sub {
				b.subscribers[executionID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(sub.ch)
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// publish 投递事件；满通道丢弃并计数。
// 发送全程持读锁：订阅通道只在写锁内关闭，发送不会命中已关闭通道。
func (b *eventBroker) publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.ExecutionID] {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Debug("slow subscriber, event dropped",
				zap.String("execution_id", event.ExecutionID),
				zap.String("type", string(event.Type)),
			)
		}
	}
}

// closeExecution 执行结束后关闭该执行的所有订阅者
func (b *eventBroker) closeExecution(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers[executionID] {
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
	}
	delete(b.subscribers, executionID)
}

// droppedCount 返回累计丢弃事件数
func (b *eventBroker) droppedCount() int64 {
	return b.dropped.Load()
}
