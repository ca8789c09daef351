package engine

import (
	"context"
	"time"

	"github.com/BaSui01/teamflow/bus"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/profile"
)

// Session 传递给 Runner 的执行内句柄：总线收发、受可见性约束的
// 记忆读写、档案查询。
type Session struct {
	executionID string
	bus         *bus.Bus
	memory      *memory.TeamMemory
	registry    *profile.Registry
}

// ExecutionID 返回所属执行 ID
func (s *Session) ExecutionID() string {
	return s.executionID
}

// Send 发送消息
func (s *Session) Send(ctx context.Context, msg *bus.Message) error {
	return s.bus.Send(ctx, msg)
}

// Receive 接收下一条消息
func (s *Session) Receive(ctx context.Context, agentID string) (*bus.Message, error) {
	return s.bus.Receive(ctx, agentID)
}

// ReceiveTimeout 带超时接收
func (s *Session) ReceiveTimeout(ctx context.Context, agentID string, timeout time.Duration) (*bus.Message, error) {
	return s.bus.ReceiveTimeout(ctx, agentID, timeout)
}

// Request 请求-响应
func (s *Session) Request(ctx context.Context, msg *bus.Message, timeout time.Duration) (*bus.Message, error) {
	return s.bus.Request(ctx, msg, timeout)
}

// MemoryPut 以某智能体身份写入记忆
func (s *Session) MemoryPut(ctx context.Context, agentID string, scope memory.Scope, key, content string, payload any, ttl time.Duration) (*memory.Item, error) {
	return s.memory.Put(ctx, agentID, scope, key, content, payload, ttl)
}

// MemoryGet 以某智能体身份读取记忆；不可见作用域表现为缺失
func (s *Session) MemoryGet(ctx context.Context, agentID string, scope memory.Scope, key string) (*memory.Item, error) {
	return s.memory.Get(ctx, agentID, scope, key)
}

// MemoryKeys 列出可见作用域内的键
func (s *Session) MemoryKeys(ctx context.Context, agentID string, scope memory.Scope, pattern string) ([]string, error) {
	return s.memory.Keys(ctx, agentID, scope, pattern)
}

// Profile 查询智能体档案（最新版本）
func (s *Session) Profile(agentID string) (*profile.AgentProfile, error) {
	return s.registry.Get(agentID)
}

// TeamScope 返回本执行的 team 作用域
func (s *Session) TeamScope() memory.Scope {
	return memory.TeamScope(s.executionID)
}
