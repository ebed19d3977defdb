// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	cacheredis "automation-bridge/internal/shared/cache/redis"
	eventbusredis "automation-bridge/internal/shared/eventbus/redis"
)

// NewRedisInfrastructure 从 URL 创建 Redis 基础设施
//
// Cache 与 EventBus 共用同一个连接，Close 只关闭一次。
func NewRedisInfrastructure(redisURL string) (*Infrastructure, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)

	return &Infrastructure{
		Cache:    cacheredis.NewStoreFromClient(client),
		EventBus: eventbusredis.NewStoreFromClient(client),
		closer:   client.Close,
	}, nil
}
