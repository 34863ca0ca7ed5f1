package notify

import (
	"context"

	"rescuenet/internal/models"
)

// Format 消息正文格式
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Message 已渲染的通知内容
type Message struct {
	Subject  string
	Body     string
	Format   Format
	DeviceID string // 被监护人设备，SIM800L 中继短信时使用
}

// Channel 通知渠道（短信、邮件、机器人消息、推送）
// Send 必须遵守 ctx 的超时；返回错误即本次尝试失败
type Channel interface {
	Type() models.ChannelType
	Send(ctx context.Context, target string, msg Message) error
}
