package notify

import (
	"context"

	"rescuenet/internal/models"

	"go.uber.org/zap"
)

// LogChannel 只记录日志的渠道（开发环境或未配置供应商时使用）
type LogChannel struct {
	channelType models.ChannelType
	logger      *zap.Logger
}

// NewLogChannel 创建日志渠道
func NewLogChannel(channelType models.ChannelType, logger *zap.Logger) *LogChannel {
	return &LogChannel{channelType: channelType, logger: logger}
}

func (c *LogChannel) Type() models.ChannelType {
	return c.channelType
}

func (c *LogChannel) Send(ctx context.Context, target string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("Notification logged",
		zap.String("channel", string(c.channelType)),
		zap.String("target", target),
		zap.String("subject", msg.Subject),
		zap.Int("body_length", len(msg.Body)),
	)
	return nil
}
