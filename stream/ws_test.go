package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// --- Helpers ---

type testEvent struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// echoServer creates an httptest.Server that upgrades to WebSocket and
// echoes every message back to the client.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, zaptest.NewLogger(t))
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var ev testEvent
			if err := conn.ReadEvent(r.Context(), &ev); err != nil {
				return
			}
			if err := conn.WriteEvent(r.Context(), ev); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialEventConn(t *testing.T, srv *httptest.Server) *EventConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(srv), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// --- Tests ---

func TestEventConnRoundTrip(t *testing.T) {
	srv := echoServer(t)
	conn := dialEventConn(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sent := testEvent{
		ID:   "ev-1",
		Type: "task_completed",
		Data: map[string]any{"task_id": "research", "agent_id": "researcher-001"},
	}
	require.NoError(t, conn.WriteEvent(ctx, sent))

	var received testEvent
	require.NoError(t, conn.ReadEvent(ctx, &received))

	assert.Equal(t, sent.ID, received.ID)
	assert.Equal(t, sent.Type, received.Type)
	assert.Equal(t, "research", received.Data["task_id"])
}

func TestEventConnIsAlive(t *testing.T) {
	srv := echoServer(t)
	conn := dialEventConn(t, srv)

	assert.True(t, conn.IsAlive())

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsAlive())
}

func TestEventConnCloseIdempotent(t *testing.T) {
	srv := echoServer(t)
	conn := dialEventConn(t, srv)

	require.NoError(t, conn.Close())

	// Second close should be a no-op, not an error.
	assert.NoError(t, conn.Close())
}

func TestEventConnWriteAfterClose(t *testing.T) {
	srv := echoServer(t)
	conn := dialEventConn(t, srv)
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := conn.WriteEvent(ctx, testEvent{ID: "x"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestEventConnReadAfterClose(t *testing.T) {
	srv := echoServer(t)
	conn := dialEventConn(t, srv)
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var ev testEvent
	assert.Error(t, conn.ReadEvent(ctx, &ev))
}

func TestEventConnConcurrentWrites(t *testing.T) {
	srv := echoServer(t)
	conn := dialEventConn(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(seq int) {
			defer wg.Done()
			_ = conn.WriteEvent(ctx, testEvent{ID: fmt.Sprintf("ev-%d", seq)})
		}(i)
	}

	wg.Wait()
	// If we get here without a panic or data race, the mutex is working.
}

func TestEventConnReadInvalidJSON(t *testing.T) {
	// Server that sends a non-JSON text frame.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		_ = conn.Write(r.Context(), websocket.MessageText, []byte("not-json"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, wsURL(srv), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var ev testEvent
	err = conn.ReadEvent(ctx, &ev)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal event")
}

func TestDialInvalidURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, "ws://localhost:1", zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, conn)
}
