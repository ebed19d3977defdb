// Package eventbus 事件总线抽象接口
//
// 提供通知的发布/订阅能力，当前由 Redis Pub/Sub 实现，用于多副本之间转发推送：
// 回调可能落在任意副本，而持有请求方连接的只有一个副本。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// NotificationBus 推送通知总线
type NotificationBus interface {
	PublishNotification(ctx context.Context, n *Notification) error
	// SubscribeNotifications 订阅全部通知，ctx 取消后返回的 channel 关闭
	SubscribeNotifications(ctx context.Context) (<-chan *Notification, error)
	Close() error
}
