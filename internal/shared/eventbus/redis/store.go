// Package redis Redis 事件总线实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"automation-bridge/internal/shared/eventbus"
)

// Store Redis Pub/Sub 通知总线
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建事件总线实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// PublishNotification 发布推送通知
func (s *Store) PublishNotification(ctx context.Context, n *eventbus.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, eventbus.ChannelNotifications, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// SubscribeNotifications 订阅推送通知
func (s *Store) SubscribeNotifications(ctx context.Context) (<-chan *eventbus.Notification, error) {
	sub := s.client.Subscribe(ctx, eventbus.ChannelNotifications)
	// 等待订阅确认，避免订阅建立前发布的消息丢失
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	ch := make(chan *eventbus.Notification, 100)
	go func() {
		defer close(ch)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n eventbus.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					log.Printf("[Redis/EventBus] Dropping malformed notification: %v", err)
					continue
				}
				select {
				case ch <- &n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

var _ eventbus.NotificationBus = (*Store)(nil)
