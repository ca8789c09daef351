// Package bus provides execution-scoped inter-agent messaging with
// per-agent FIFO queues, broadcast fan-out and request/response threads.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcast 广播接收者标识
const Broadcast = "all"

var (
	// ErrBusClosed 消息总线已关闭
	ErrBusClosed = errors.New("bus is closed")
	// ErrUnknownAgent 未注册的接收者
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrReceiveTimeout 接收超时
	ErrReceiveTimeout = errors.New("receive timeout")
	// ErrContentTooLarge 消息内容超出令牌预算
	ErrContentTooLarge = errors.New("message content exceeds token budget")
)

// Type 消息类型
type Type string

const (
	TypeDirect    Type = "direct"
	TypeBroadcast Type = "broadcast"
	TypeRequest   Type = "request"
	TypeResponse  Type = "response"
)

// Message 智能体间消息
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"` // agent id 或 "all"
	Type      Type           `json:"type"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Priority  int            `json:"priority,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stats 总线计数器
type Stats struct {
	Sent     int64 `json:"sent"`
	Dropped  int64 `json:"dropped"`
	Rejected int64 `json:"rejected"`
}

// Config 总线配置
type Config struct {
	// QueueSize 每个智能体的队列容量
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// MaxContentTokens 单条消息内容的令牌上限，0 表示不限制
	MaxContentTokens int `yaml:"max_content_tokens" json:"max_content_tokens"`
}

// DefaultConfig 返回默认总线配置
func DefaultConfig() Config {
	return Config{QueueSize: 100}
}

// Bus 执行范围内的消息总线。每个智能体持有一个有界 FIFO 队列；
// 队列满时丢弃消息（至多一次投递，绝不阻塞引擎）。
type Bus struct {
	mu        sync.RWMutex
	queues    map[string]chan *Message
	waiters   map[string]chan *Message // thread id -> 请求方等待通道
	config    Config
	counter   *tokenCounter
	logger    *zap.Logger
	closed    atomic.Bool
	closeOnce sync.Once

	sent     atomic.Int64
	dropped  atomic.Int64
	rejected atomic.Int64
}

// New 创建消息总线并为每个智能体建立队列
func New(agentIDs []string, config Config, logger *zap.Logger) *Bus {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		queues:  make(map[string]chan *Message, len(agentIDs)),
		waiters: make(map[string]chan *Message),
		config:  config,
		counter: newTokenCounter(),
		logger:  logger.With(zap.String("component", "bus")),
	}
	for _, id := range agentIDs {
		b.queues[id] = make(chan *Message, config.QueueSize)
	}
	return b
}

// Send 发送消息。ID 与时间戳为空时自动填充；
// 广播跳过发送者；队列满时丢弃并计数。
func (b *Bus) Send(ctx context.Context, msg *Message) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if msg == nil {
		return fmt.Errorf("nil message")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Type == "" {
		if msg.To == Broadcast {
			msg.Type = TypeBroadcast
		} else {
			msg.Type = TypeDirect
		}
	}

	if b.config.MaxContentTokens > 0 && msg.Content != "" {
		n, err := b.counter.Count(msg.Content)
		if err != nil {
			b.logger.Warn("token count failed, message passed through", zap.Error(err))
		} else if n > b.config.MaxContentTokens {
			b.rejected.Add(1)
			return fmt.Errorf("%w: %d > %d", ErrContentTooLarge, n, b.config.MaxContentTokens)
		}
	}

	// response 消息优先交付给等待中的请求方
	if msg.Type == TypeResponse && msg.ThreadID != "" {
		b.mu.RLock()
		waiter, ok := b.waiters[msg.ThreadID]
		b.mu.RUnlock()
		if ok {
			select {
			case waiter <- msg:
				b.sent.Add(1)
			default:
				b.dropped.Add(1)
			}
			return nil
		}
	}

	if msg.To == Broadcast {
		b.mu.RLock()
		defer b.mu.RUnlock()
		// closed 置位先于写锁内关闭队列；读锁内复查后队列保证未关闭
		if b.closed.Load() {
			return ErrBusClosed
		}
		for id, q := range b.queues {
			if id == msg.From {
				continue
			}
			b.deliver(q, msg, id)
		}
		return nil
	}

	// 交付需持读锁：Close 在写锁内关闭队列，二者互斥
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.Load() {
		return ErrBusClosed
	}
	q, ok := b.queues[msg.To]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, msg.To)
	}
	b.deliver(q, msg, msg.To)
	return nil
}

func (b *Bus) deliver(q chan *Message, msg *Message, recipient string) {
	select {
	case q <- msg:
		b.sent.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("queue full, message dropped",
			zap.String("to", recipient),
			zap.String("message_id", msg.ID),
		)
	}
}

// Receive 阻塞接收下一条消息（FIFO）
func (b *Bus) Receive(ctx context.Context, agentID string) (*Message, error) {
	b.mu.RLock()
	q, ok := b.queues[agentID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	select {
	case msg, open := <-q:
		if !open {
			return nil, ErrBusClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReceiveTimeout 带超时的接收
func (b *Bus) ReceiveTimeout(ctx context.Context, agentID string, timeout time.Duration) (*Message, error) {
	b.mu.RLock()
	q, ok := b.queues[agentID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, open := <-q:
		if !open {
			return nil, ErrBusClosed
		}
		return msg, nil
	case <-timer.C:
		return nil, ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive 非阻塞接收，无消息时返回 nil
func (b *Bus) TryReceive(agentID string) *Message {
	b.mu.RLock()
	q, ok := b.queues[agentID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case msg := <-q:
		return msg
	default:
		return nil
	}
}

// Request 发送请求并等待同一 ThreadID 的首个响应
func (b *Bus) Request(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if msg.ThreadID == "" {
		msg.ThreadID = uuid.NewString()
	}
	msg.Type = TypeRequest

	waiter := make(chan *Message, 1)
	b.mu.Lock()
	b.waiters[msg.ThreadID] = waiter
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, msg.ThreadID)
		b.mu.Unlock()
	}()

	if err := b.Send(ctx, msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response on thread %s", ErrReceiveTimeout, msg.ThreadID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats 返回计数器快照
func (b *Bus) Stats() Stats {
	return Stats{
		Sent:     b.sent.Load(),
		Dropped:  b.dropped.Load(),
		Rejected: b.rejected.Load(),
	}
}

// Close 幂等关闭；未投递的消息被丢弃
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, q := range b.queues {
			close(q)
		}
	})
	return nil
}
