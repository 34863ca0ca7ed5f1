package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisGuard 基于 SETNX 的分发令牌，多实例共享
type RedisGuard struct {
	redisClient *redis.Client
	prefix      string
}

// NewRedisGuard 创建 Redis 令牌
func NewRedisGuard(redisClient *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{
		redisClient: redisClient,
		prefix:      prefix,
	}
}

// Acquire 第一次设置成功返回 true；ttl <= 0 表示不过期
func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := g.redisClient.SetNX(ctx, g.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire dispatch token: %w", err)
	}
	return ok, nil
}
