// Package cache 缓存层内存实现
package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// MemoryCache - 单副本部署与测试使用的内存实现
// ============================================================================

// MemoryCache 进程内 ReplayGuard
type MemoryCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{seen: make(map[string]time.Time), now: time.Now}
}

// MarkSeen 首次出现返回 true
func (c *MemoryCache) MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	if exp, ok := c.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	c.seen[id] = now.Add(ttl)
	return true, nil
}

// sweep 清理过期记录，调用方持有锁
func (c *MemoryCache) sweep(now time.Time) {
	for id, exp := range c.seen {
		if !now.Before(exp) {
			delete(c.seen, id)
		}
	}
}

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	return nil
}

var _ Cache = (*MemoryCache)(nil)
