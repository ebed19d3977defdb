// Package eventbus 事件总线类型定义
package eventbus

import (
	"encoding/json"
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// Notification 发往某个请求方连接的推送
type Notification struct {
	ConnectionID string          `json:"connection_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	Origin       string          `json:"origin,omitempty"` // 发布方副本标识
	Timestamp    time.Time       `json:"timestamp"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// ChannelNotifications Pub/Sub 频道
	ChannelNotifications = "da:notifications"
)
