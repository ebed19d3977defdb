// Package eventbus 事件总线内存实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// MemoryBus - 进程内 NotificationBus（用于测试多副本转发）
// ============================================================================

// MemoryBus 把发布的通知扇出给全部订阅者
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[chan *Notification]struct{}
	closed bool
}

// NewMemoryBus 创建 MemoryBus 实例
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[chan *Notification]struct{})}
}

// PublishNotification 发布通知；订阅者缓冲已满时丢弃
func (b *MemoryBus) PublishNotification(ctx context.Context, n *Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

// SubscribeNotifications 订阅全部通知
func (b *MemoryBus) SubscribeNotifications(ctx context.Context) (<-chan *Notification, error) {
	ch := make(chan *Notification, 64)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()
	return ch, nil
}

// Close 关闭总线并结束全部订阅
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}

var _ NotificationBus = (*MemoryBus)(nil)
