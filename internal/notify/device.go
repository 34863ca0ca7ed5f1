package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rescuenet/internal/models"
)

// Publisher MQTT 发布能力（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte, timeout time.Duration) error
}

// deviceSMSCommand 下发给设备的短信指令
type deviceSMSCommand struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// DeviceSMSChannel 通过被监护人设备上的 SIM800L 模块发送短信
// 服务端只下发 MQTT 指令，由设备执行 AT+CMGS
type DeviceSMSChannel struct {
	publisher     Publisher
	topicTemplate string // 例如 "rescuenet/%s/sms"
	qos           byte
}

// NewDeviceSMSChannel 创建设备短信中继渠道
func NewDeviceSMSChannel(publisher Publisher, topicTemplate string, qos byte) *DeviceSMSChannel {
	return &DeviceSMSChannel{publisher: publisher, topicTemplate: topicTemplate, qos: qos}
}

func (c *DeviceSMSChannel) Type() models.ChannelType {
	return models.ChannelSMS
}

func (c *DeviceSMSChannel) Send(ctx context.Context, target string, msg Message) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("no device bound to subject, cannot relay SMS")
	}
	payload, err := json.Marshal(deviceSMSCommand{To: target, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS command: %w", err)
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	return c.publisher.Publish(fmt.Sprintf(c.topicTemplate, msg.DeviceID), c.qos, false, payload, timeout)
}
