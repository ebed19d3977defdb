// Package notify WebSocket 推送通道单元测试
//
// # 测试分组
//
// ## 连接建立
//   - TestHandleWebSocket_SendsConnectionID: 连接后立即收到 connectionId
//   - TestHandleWebSocket_GetConnectionID: 客户端重新请求 id
//   - TestHandleWebSocket_PingPong: 心跳消息处理
//
// ## 推送
//   - TestHandleWebSocket_PushOrder: Registry.Send 的推送按顺序到达
//   - TestHandleWebSocket_DisconnectUnregisters: 断开后注销
package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingObserver 记录连接数
type countingObserver struct {
	opened, closed, messages int32
}

func (o *countingObserver) WSConnectionOpened()                       { atomic.AddInt32(&o.opened, 1) }
func (o *countingObserver) WSConnectionClosed()                       { atomic.AddInt32(&o.closed, 1) }
func (o *countingObserver) RecordWSMessage(direction, msgType string) { atomic.AddInt32(&o.messages, 1) }

func newTestServer(t *testing.T, observer Observer) (*Registry, *httptest.Server) {
	t.Helper()
	registry := NewRegistry()
	h := NewHandler(registry, nil, observer)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return registry, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/designautomation"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// ============================================================================
// 连接建立
// ============================================================================

func TestHandleWebSocket_SendsConnectionID(t *testing.T) {
	observer := &countingObserver{}
	registry, srv := newTestServer(t, observer)
	conn := dial(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, EventConnectionID, msg.Type)
	id, ok := msg.Data.(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, int32(1), atomic.LoadInt32(&observer.opened))
}

func TestHandleWebSocket_GetConnectionID(t *testing.T) {
	_, srv := newTestServer(t, nil)
	conn := dial(t, srv)

	first := readMessage(t, conn)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "getConnectionId"}))
	again := readMessage(t, conn)

	assert.Equal(t, EventConnectionID, again.Type)
	assert.Equal(t, first.Data, again.Data)
}

func TestHandleWebSocket_PingPong(t *testing.T) {
	_, srv := newTestServer(t, nil)
	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "pong", msg.Type)
	assert.Nil(t, msg.Data)
}

// ============================================================================
// 推送
// ============================================================================

// TestHandleWebSocket_PushOrder 连续推送保持顺序
func TestHandleWebSocket_PushOrder(t *testing.T) {
	registry, srv := newTestServer(t, nil)
	conn := dial(t, srv)
	id := readMessage(t, conn).Data.(string)

	ctx := context.Background()
	require.NoError(t, registry.Send(ctx, id, EventOnComplete, `{"status":"success"}`))
	require.NoError(t, registry.Send(ctx, id, EventOnComplete, "report text"))
	require.NoError(t, registry.Send(ctx, id, EventDownloadResult, "https://signed/url"))

	want := []Message{
		{Type: EventOnComplete, Data: `{"status":"success"}`},
		{Type: EventOnComplete, Data: "report text"},
		{Type: EventDownloadResult, Data: "https://signed/url"},
	}
	for _, w := range want {
		assert.Equal(t, w, readMessage(t, conn))
	}
}

// TestHandleWebSocket_DisconnectUnregisters 客户端断开后连接从登记表移除
func TestHandleWebSocket_DisconnectUnregisters(t *testing.T) {
	observer := &countingObserver{}
	registry, srv := newTestServer(t, observer)
	conn := dial(t, srv)
	id := readMessage(t, conn).Data.(string)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, registry.Send(context.Background(), id, EventOnComplete, "late"), ErrNoChannel)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&observer.closed) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws/designautomation", nil)
	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}
