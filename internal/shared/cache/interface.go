// Package cache 缓存层抽象接口
//
// 提供短期状态的存取能力，当前用于回调防重放，由内存或 Redis 实现。
package cache

import (
	"context"
	"time"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// ReplayGuard 回调防重放
//
// MarkSeen 原子地记录 id，首次出现返回 true；ttl 之后记录过期。
type ReplayGuard interface {
	MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	ReplayGuard
	Close() error
}
