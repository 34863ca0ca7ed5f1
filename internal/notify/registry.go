package notify

import (
	"fmt"

	"rescuenet/internal/config"
	"rescuenet/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Deps 渠道依赖的外部连接，可为 nil
type Deps struct {
	Redis *redis.Client
	MQTT  Publisher
}

// NewChannels 按配置构造各类型渠道，每种类型至多一个
// 未配置凭据的渠道不启用（短信默认回落到日志渠道）
func NewChannels(cfg *config.Config, deps Deps, logger *zap.Logger) ([]Channel, error) {
	var channels []Channel

	switch cfg.Notify.SMSProvider {
	case "twilio":
		t := cfg.Notify.Twilio
		if t.AccountSID == "" || t.AuthToken == "" || t.From == "" {
			return nil, fmt.Errorf("twilio SMS provider requires account SID, auth token and sender number")
		}
		channels = append(channels, NewTwilioSMSChannel(t.BaseURL, t.AccountSID, t.AuthToken, t.From, logger))
	case "device":
		if deps.MQTT == nil {
			return nil, fmt.Errorf("device SMS provider requires an MQTT connection")
		}
		channels = append(channels, NewDeviceSMSChannel(deps.MQTT, cfg.Notify.DeviceSMSTopic, cfg.MQTT.QoS))
	case "log", "":
		channels = append(channels, NewLogChannel(models.ChannelSMS, logger))
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", cfg.Notify.SMSProvider)
	}

	if s := cfg.Notify.SMTP; s.Host != "" {
		channels = append(channels, NewEmailChannel(s.Host, s.Port, s.Username, s.Password, s.From))
	} else {
		logger.Info("SMTP not configured, email notifications disabled")
	}

	if tg := cfg.Notify.Telegram; tg.Token != "" {
		channels = append(channels, NewTelegramChannel(tg.BaseURL, tg.Token, logger))
	} else {
		logger.Info("Telegram bot token not configured, bot alerts disabled")
	}

	if cfg.Dispatch.PushEnabled && deps.Redis != nil {
		channels = append(channels, NewStreamPushChannel(deps.Redis, cfg.Notify.Push.Stream, cfg.Notify.Push.MaxLen))
	}

	return channels, nil
}
