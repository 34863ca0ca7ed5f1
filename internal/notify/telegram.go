package notify

import (
	"context"
	"fmt"

	"rescuenet/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type telegramRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// TelegramChannel 通过 Bot API sendMessage 发送告警
type TelegramChannel struct {
	httpClient *resty.Client
	token      string
	logger     *zap.Logger
}

// NewTelegramChannel 创建 Telegram 机器人渠道
func NewTelegramChannel(baseURL, token string, logger *zap.Logger) *TelegramChannel {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TelegramChannel{
		httpClient: client,
		token:      token,
		logger:     logger,
	}
}

func (c *TelegramChannel) Type() models.ChannelType {
	return models.ChannelTelegram
}

// Send target 为 chat_id
func (c *TelegramChannel) Send(ctx context.Context, target string, msg Message) error {
	req := telegramRequest{ChatID: target, Text: msg.Body}
	if msg.Format == FormatMarkdown {
		req.ParseMode = "Markdown"
	}

	var response telegramResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		SetError(&response).
		Post(fmt.Sprintf("/bot%s/sendMessage", c.token))
	if err != nil {
		return fmt.Errorf("failed to call Telegram API: %w", err)
	}
	if resp.IsError() || !response.OK {
		return fmt.Errorf("Telegram API error: %s (status: %d)", response.Description, resp.StatusCode())
	}

	c.logger.Debug("Telegram message sent", zap.String("chat_id", target))
	return nil
}
