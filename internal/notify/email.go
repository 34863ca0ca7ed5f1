package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"rescuenet/internal/models"
)

// SendMailFunc 与 smtp.SendMail 相同签名，测试时替换
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel SMTP 邮件渠道
type EmailChannel struct {
	addr     string
	host     string
	auth     smtp.Auth
	from     string
	sendMail SendMailFunc
}

// NewEmailChannel 创建邮件渠道，username 为空时不做认证
func NewEmailChannel(host string, port int, username, password, from string) *EmailChannel {
	c := &EmailChannel{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		host:     host,
		from:     from,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		c.auth = smtp.PlainAuth("", username, password, host)
	}
	return c
}

// WithSendMail 替换发送函数
func (c *EmailChannel) WithSendMail(fn SendMailFunc) *EmailChannel {
	c.sendMail = fn
	return c
}

func (c *EmailChannel) Type() models.ChannelType {
	return models.ChannelEmail
}

// Send smtp.SendMail 不接收 ctx，超时由调用方兜底
func (c *EmailChannel) Send(ctx context.Context, target string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(target, "\r\n") {
		return fmt.Errorf("invalid email address %q", target)
	}
	if err := c.sendMail(c.addr, c.auth, c.from, []string{target}, BuildMIME(c.from, target, msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// BuildMIME 组装纯文本邮件
func BuildMIME(from, to string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
