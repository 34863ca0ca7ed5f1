package notify

import (
	"context"
	"fmt"

	"rescuenet/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// twilioError Twilio 错误响应
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// twilioMessage Twilio 成功响应（只取需要的字段）
type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// TwilioSMSChannel 通过 Twilio Messages API 发送短信
type TwilioSMSChannel struct {
	httpClient *resty.Client
	accountSID string
	from       string
	logger     *zap.Logger
}

// NewTwilioSMSChannel 创建 Twilio 短信渠道
// 不设置自动重试：重试由调用方按 attempt 驱动
func NewTwilioSMSChannel(baseURL, accountSID, authToken, from string, logger *zap.Logger) *TwilioSMSChannel {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json")

	return &TwilioSMSChannel{
		httpClient: client,
		accountSID: accountSID,
		from:       from,
		logger:     logger,
	}
}

func (c *TwilioSMSChannel) Type() models.ChannelType {
	return models.ChannelSMS
}

// Send 发送短信
func (c *TwilioSMSChannel) Send(ctx context.Context, target string, msg Message) error {
	var result twilioMessage
	var apiErr twilioError

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   target,
			"From": c.from,
			"Body": msg.Body,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID))
	if err != nil {
		return fmt.Errorf("failed to call Twilio API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("Twilio API error: %s (status: %d, code: %d)", apiErr.Message, resp.StatusCode(), apiErr.Code)
	}

	c.logger.Debug("SMS accepted by Twilio",
		zap.String("target", target),
		zap.String("sid", result.SID),
		zap.String("status", result.Status),
	)
	return nil
}
