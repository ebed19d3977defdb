package notify

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 推送给浏览器的消息类型
const (
	EventConnectionID   = "connectionId"
	EventOnComplete     = "onComplete"
	EventDownloadResult = "downloadResult"
	eventPong           = "pong"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendQueueSize  = 32
	maxMessageSize = 512
)

var (
	errChannelClosed = errors.New("channel closed")
	errQueueFull     = errors.New("send queue full")
)

// Message 推送消息格式：{"type": "...", "data": ...}
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Observer 连接与消息指标
type Observer interface {
	WSConnectionOpened()
	WSConnectionClosed()
	RecordWSMessage(direction, msgType string)
}

type noopObserver struct{}

func (noopObserver) WSConnectionOpened() {}
func (noopObserver) WSConnectionClosed() {}
func (noopObserver) RecordWSMessage(direction, msgType string) {}

// Handler WebSocket 推送通道接入
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
	observer Observer
}

// NewHandler 创建 Handler
//
// allowedOrigins 为空时允许任意来源。
func NewHandler(registry *Registry, allowedOrigins []string, observer Observer) *Handler {
	if observer == nil {
		observer = noopObserver{}
	}
	h := &Handler{registry: registry, observer: observer}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/designautomation", h.HandleWebSocket)
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/designautomation
//
// 连接建立后立即推送 {"type": "connectionId", "data": "<id>"}。
//
// 客户端消息：
//
//	重新获取 id：{"type": "getConnectionId"}
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Notify] WebSocket upgrade error: %v", err)
		return
	}

	ch := newWSChannel(conn, h.observer)
	id := h.registry.Register(ch)
	h.observer.WSConnectionOpened()
	log.Printf("[Notify] Connection %s opened (%d active)", id, h.registry.Count())

	defer func() {
		h.registry.Unregister(id)
		ch.Close()
		h.observer.WSConnectionClosed()
		log.Printf("[Notify] Connection %s closed", id)
	}()

	go ch.writePump()

	ch.Push(EventConnectionID, id)
	ch.readPump(id)
}

// ============================================================================
// wsChannel
// ============================================================================

// wsChannel 单个 WebSocket 连接
//
// 所有写入经由 send 队列交给 writePump，保证单写者与推送顺序。
type wsChannel struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	observer Observer
}

func newWSChannel(conn *websocket.Conn, observer Observer) *wsChannel {
	return &wsChannel{
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		observer: observer,
	}
}

// Push 入队，连接已关闭或队列已满时返回错误
func (c *wsChannel) Push(event string, payload any) error {
	b, err := json.Marshal(Message{Type: event, Data: payload})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.send <- b:
		c.observer.RecordWSMessage("out", event)
		return nil
	case <-c.done:
		return errChannelClosed
	default:
		return errQueueFull
	}
}

// Close 关闭连接，可重复调用
func (c *wsChannel) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump 读取客户端消息，连接断开时返回
func (c *wsChannel) readPump(id string) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[Notify] WebSocket read error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var req Message
		if json.Unmarshal(msg, &req) != nil {
			continue
		}
		c.observer.RecordWSMessage("in", req.Type)
		switch req.Type {
		case "getConnectionId":
			c.Push(EventConnectionID, id)
		case "ping":
			c.Push(eventPong, nil)
		}
	}
}

// writePump 串行写出队列中的消息，并定期发送 ping
func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Printf("[Notify] WebSocket write error: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
