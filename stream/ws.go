// Package stream 将执行事件流适配到 WebSocket 连接。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// EventConn 包装 WebSocket 连接用于事件推送。
// 写操作通过 mutex 保护，因为 WebSocket 不支持并发写。
type EventConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex // 保护写操作
	closed bool
}

// Accept 将 HTTP 请求升级为 WebSocket 事件连接。
func Accept(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*EventConn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	return newEventConn(conn, logger), nil
}

// Dial 建立到事件端点的客户端连接（测试与 CLI 消费方使用）。
func Dial(ctx context.Context, url string, logger *zap.Logger) (*EventConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return newEventConn(conn, logger), nil
}

func newEventConn(conn *websocket.Conn, logger *zap.Logger) *EventConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventConn{
		conn:   conn,
		logger: logger.With(zap.String("component", "event_conn")),
	}
}

// WriteEvent 将事件序列化为 JSON 文本帧发送。
func (c *EventConn) WriteEvent(ctx context.Context, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ReadEvent 读取一个 JSON 编码的事件帧。
func (c *EventConn) ReadEvent(ctx context.Context, dst any) error {
	if c.isClosed() {
		return fmt.Errorf("connection closed")
	}

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("websocket read: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	return nil
}

// Close 正常关闭连接。
func (c *EventConn) Close() error {
	return c.CloseWith(websocket.StatusNormalClosure, "closing")
}

// CloseWith 以指定状态码关闭连接。
func (c *EventConn) CloseWith(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close(code, reason)
}

// IsAlive 检查连接是否存活。
func (c *EventConn) IsAlive() bool {
	return !c.isClosed()
}

func (c *EventConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
