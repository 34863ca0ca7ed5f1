package notify

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "rescuenet/common/redis"
	"rescuenet/internal/models"

	"github.com/go-redis/redis/v8"
)

// StreamPushChannel 将告警写入 Redis Stream，供仪表盘推送服务消费
type StreamPushChannel struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPushChannel 创建仪表盘推送渠道
func NewStreamPushChannel(client *redis.Client, stream string, maxLen int64) *StreamPushChannel {
	return &StreamPushChannel{client: client, stream: stream, maxLen: maxLen}
}

func (c *StreamPushChannel) Type() models.ChannelType {
	return models.ChannelPush
}

// Send 正文应为 JSON；target 仅用于记录
func (c *StreamPushChannel) Send(ctx context.Context, target string, msg Message) error {
	if !json.Valid([]byte(msg.Body)) {
		return fmt.Errorf("push payload is not valid JSON")
	}
	if _, err := rediscommon.PublishJSONToStream(ctx, c.client, c.stream, json.RawMessage(msg.Body), c.maxLen); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", c.stream, err)
	}
	return nil
}
