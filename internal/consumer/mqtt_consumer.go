package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqttcommon "rescuenet/common/mqtt"
	"rescuenet/internal/config"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（*mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 订阅设备上报主题并送入 Ingestor
type MQTTConsumer struct {
	config     *config.Config
	subscriber Subscriber
	ingestor   Ingestor
	logger     *zap.Logger
	now        func() time.Time

	mu  sync.RWMutex
	ctx context.Context
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(
	cfg *config.Config,
	subscriber Subscriber,
	ingestor Ingestor,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		subscriber: subscriber,
		ingestor:   ingestor,
		logger:     logger,
		now:        time.Now,
		ctx:        context.Background(),
	}
}

// Start 订阅并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	topic := c.config.Ingest.Topic
	if err := c.subscriber.Subscribe(topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", topic))

	<-ctx.Done()
	if err := c.subscriber.Unsubscribe(topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理一条设备消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	sample, err := decodeSample(payload, subjectFromTopic(topic), c.now())
	if err != nil {
		return err
	}

	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()

	if err := c.ingestor.Ingest(ctx, sample); err != nil {
		return fmt.Errorf("failed to ingest sample for %s: %w", sample.SubjectID, err)
	}
	return nil
}
