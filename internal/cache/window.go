package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rescuenet/internal/config"
	"rescuenet/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// HistoryStore 历史窗口数据源
type HistoryStore interface {
	GetWindow(ctx context.Context, subjectID string, metric models.Metric, q models.WindowQuery) ([]models.VitalSample, error)
}

// WindowCache Redis 窗口缓存，包装 HistoryStore
// 只缓存不带时间范围的 "最近 N 条" 查询，Redis 出错时直接回源
type WindowCache struct {
	store       HistoryStore
	redisClient *redis.Client
	prefix      string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewWindowCache 创建窗口缓存
func NewWindowCache(
	cfg *config.Config,
	store HistoryStore,
	redisClient *redis.Client,
	logger *zap.Logger,
) *WindowCache {
	return &WindowCache{
		store:       store,
		redisClient: redisClient,
		prefix:      cfg.Cache.WindowKeyPrefix,
		ttl:         cfg.Cache.WindowTTL,
		logger:      logger,
	}
}

// windowKey 例如 rescuenet:window:subject-1:heart_rate:50
func (c *WindowCache) windowKey(subjectID string, metric models.Metric, limit int) string {
	m := string(metric)
	if m == "" {
		m = "all"
	}
	return fmt.Sprintf("%s%s:%s:%d", c.prefix, subjectID, m, limit)
}

// GetWindow 优先读缓存
func (c *WindowCache) GetWindow(ctx context.Context, subjectID string, metric models.Metric, q models.WindowQuery) ([]models.VitalSample, error) {
	if q.Since != nil || q.Until != nil || c.ttl <= 0 {
		return c.store.GetWindow(ctx, subjectID, metric, q)
	}

	key := c.windowKey(subjectID, metric, q.Limit)
	val, err := c.redisClient.Get(ctx, key).Result()
	if err == nil {
		var window []models.VitalSample
		if err := json.Unmarshal([]byte(val), &window); err == nil {
			return window, nil
		}
		c.logger.Warn("Failed to unmarshal cached window, reloading",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if err != redis.Nil {
		c.logger.Warn("Failed to read window cache",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	window, err := c.store.GetWindow(ctx, subjectID, metric, q)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(window)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal window: %w", err)
	}
	if err := c.redisClient.Set(ctx, key, jsonData, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write window cache",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return window, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Invalidate 删除该用户的所有窗口缓存（新样本入库后调用）
// 用户 ID 中的通配符被转义，且只删除 {prefix}{subject}:{metric}:{limit} 形式的键
func (c *WindowCache) Invalidate(ctx context.Context, subjectID string) error {
	keyPrefix := c.prefix + subjectID + ":"
	pattern := globEscaper.Replace(keyPrefix) + "*"
	var cursor uint64
	for {
		scanned, next, err := c.redisClient.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan window cache: %w", err)
		}
		keys := ownKeys(scanned, keyPrefix)
		if len(keys) > 0 {
			if err := c.redisClient.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete window cache: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// ownKeys 过滤出属于该用户的键；"a" 的前缀同样匹配用户 "a:b" 的键
func ownKeys(keys []string, keyPrefix string) []string {
	own := keys[:0]
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, keyPrefix)
		if ok && strings.Count(rest, ":") == 1 {
			own = append(own, k)
		}
	}
	return own
}
