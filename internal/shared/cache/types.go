// Package cache 缓存层类型定义
package cache

// ============================================================================
// Key 前缀
// ============================================================================

const (
	// KeyCallbackSeen 已处理的回调令牌 jti
	KeyCallbackSeen = "da:callback:seen:"
)
