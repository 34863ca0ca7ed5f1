package consumer

import (
	"context"
	"fmt"
	"time"

	rediscommon "rescuenet/common/redis"
	"rescuenet/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConsumer Redis Streams 消费者（上游网关写入的样本）
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	ingestor    Ingestor
	logger      *zap.Logger
	now         func() time.Time
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	ingestor Ingestor,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		ingestor:    ingestor,
		logger:      logger,
		now:         time.Now,
	}
}

// Start 创建消费者组后循环消费，读取失败时指数退避
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Ingest.Stream
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Ingest.Group); err != nil {
		return err
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.config.Ingest.Group),
		zap.String("consumer_name", c.config.Ingest.Consumer),
		zap.String("stream", stream),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

// consume 读取一批消息，返回处理条数
// 每条消息处理后都会 ack，失败只记录
func (c *StreamConsumer) consume(ctx context.Context) (int, error) {
	stream := c.config.Ingest.Stream
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		stream,
		c.config.Ingest.Group,
		c.config.Ingest.Consumer,
		c.config.Ingest.BatchSize,
		c.config.Ingest.Block,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
		}
		if err := rediscommon.Ack(ctx, c.redisClient, stream, c.config.Ingest.Group, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
		}
	}
	return len(messages), nil
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	data, ok := msg.Data()
	if !ok {
		return fmt.Errorf("missing data field in message")
	}
	sample, err := decodeSample([]byte(data), "", c.now())
	if err != nil {
		return err
	}
	if err := c.ingestor.Ingest(ctx, sample); err != nil {
		return fmt.Errorf("failed to ingest sample for %s: %w", sample.SubjectID, err)
	}
	return nil
}
