// Package notify 请求方连接登记与推送
//
// Registry 维护 requesterId → Channel 的映射。回调到达时按 id 推送事件；
// 推送是尽力而为的：连接不存在或已断开不会让回调失败。
//
// 多副本部署时挂接 NotificationBus：本地找不到连接就发布到总线，
// 由持有该连接的副本投递。总线消费只投递本地连接，从不再次发布。
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"automation-bridge/internal/shared/eventbus"
)

// ErrNoChannel 没有与 id 对应的连接
var ErrNoChannel = errors.New("no channel registered")

// Channel 一个请求方的推送通道
type Channel interface {
	// Push 按调用顺序投递事件，不阻塞
	Push(event string, payload any) error
	Close()
}

// Registry 连接登记表
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel

	bus    eventbus.NotificationBus
	origin string
}

// NewRegistry 创建连接登记表
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		origin:   uuid.NewString(),
	}
}

// AttachBus 挂接跨副本通知总线
func (r *Registry) AttachBus(bus eventbus.NotificationBus) {
	r.mu.Lock()
	r.bus = bus
	r.mu.Unlock()
}

// Register 登记通道，返回新分配的 requesterId
func (r *Registry) Register(ch Channel) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.channels[id] = ch
	r.mu.Unlock()
	return id
}

// Unregister 注销通道
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.channels, id)
	r.mu.Unlock()
}

// Count 当前本地连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Send 向 id 对应的请求方推送事件
//
// 本地存在连接时直接投递；否则有总线则转发，无总线返回 ErrNoChannel。
func (r *Registry) Send(ctx context.Context, id, event string, payload any) error {
	r.mu.RLock()
	ch, ok := r.channels[id]
	bus := r.bus
	r.mu.RUnlock()

	if ok {
		return ch.Push(event, payload)
	}
	if bus == nil {
		return ErrNoChannel
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return bus.PublishNotification(ctx, &eventbus.Notification{
		ConnectionID: id,
		Event:        event,
		Payload:      raw,
		Origin:       r.origin,
		Timestamp:    time.Now(),
	})
}

// deliverLocal 只投递本地连接
func (r *Registry) deliverLocal(id, event string, payload any) error {
	r.mu.RLock()
	ch, ok := r.channels[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoChannel
	}
	return ch.Push(event, payload)
}

// Run 消费通知总线直到 ctx 取消
func (r *Registry) Run(ctx context.Context) error {
	r.mu.RLock()
	bus := r.bus
	r.mu.RUnlock()
	if bus == nil {
		return nil
	}

	ch, err := bus.SubscribeNotifications(ctx)
	if err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	log.Printf("[Notify] Relaying notifications from bus (origin %s)", r.origin)

	for n := range ch {
		err := r.deliverLocal(n.ConnectionID, n.Event, n.Payload)
		if err != nil && !errors.Is(err, ErrNoChannel) {
			log.Printf("[Notify] Relay to %s failed: %v", n.ConnectionID, err)
		}
	}
	return ctx.Err()
}

// CloseAll 关闭全部本地通道（进程退出时）
func (r *Registry) CloseAll() {
	r.mu.Lock()
	chans := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for _, ch := range chans {
		ch.Close()
	}
}
