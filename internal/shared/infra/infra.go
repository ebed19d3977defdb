// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Cache：回调防重放（内存或 Redis）
//   - EventBus：跨副本推送转发（Redis Pub/Sub，单副本部署时为空）
package infra

import (
	"automation-bridge/internal/shared/cache"
	"automation-bridge/internal/shared/eventbus"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Cache 回调防重放
	Cache cache.Cache

	// EventBus 推送转发总线，可为 nil
	EventBus eventbus.NotificationBus

	closer func() error
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	if i.closer != nil {
		return i.closer()
	}
	var lastErr error
	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}
	if i.EventBus != nil {
		if err := i.EventBus.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NewLocalInfrastructure 单副本部署：内存防重放，无跨副本转发
func NewLocalInfrastructure() *Infrastructure {
	return &Infrastructure{
		Cache: cache.NewMemoryCache(),
	}
}
