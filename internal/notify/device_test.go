package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	topic   string
	payload []byte
	timeout time.Duration
	err     error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte, timeout time.Duration) error {
	p.topic, p.payload, p.timeout = topic, payload, timeout
	return p.err
}

func TestDeviceSMSChannel_Send(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewDeviceSMSChannel(pub, "rescuenet/%s/sms", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, ch.Send(ctx, "+15551234", Message{Body: "help", DeviceID: "esp32-01"}))

	assert.Equal(t, "rescuenet/esp32-01/sms", pub.topic)
	assert.JSONEq(t, `{"to":"+15551234","body":"help"}`, string(pub.payload))
	assert.LessOrEqual(t, pub.timeout, 3*time.Second)
}

func TestDeviceSMSChannel_NoDevice(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewDeviceSMSChannel(pub, "rescuenet/%s/sms", 1)

	assert.Error(t, ch.Send(context.Background(), "+15551234", Message{Body: "help"}))
	assert.Empty(t, pub.topic)
}
