package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
)

// ErrSendFailed 邮件发送失败
var ErrSendFailed = errors.New("failed to send email")

// Sender 通知发送通道
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSender 按 email.provider 选择实现
func NewSender(cfg *config.EmailConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("email.smtp_host is required for the smtp provider")
		}
		return NewSMTPSender(cfg), nil
	case "postmark":
		return NewPostmarkSender(cfg)
	case "", "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// SMTPSender 直连 SMTP 服务器发送纯文本邮件
type SMTPSender struct {
	cfg *config.EmailConfig
}

func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("%w: invalid recipient %q", ErrSendFailed, to)
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	msg := buildMessage(s.cfg.From, to, subject, body)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// headerBreaks 头部值里的换行会被当成新的头部
var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMessage(from, to, subject, body string) []byte {
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], headerBreaks.Replace(h[1])))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// PostmarkSender 通过 Postmark 事务邮件 API 发送
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(cfg *config.EmailConfig) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, errors.New("email.postmark_server_token is required")
	}
	if cfg.From == "" {
		return nil, errors.New("email.from is required")
	}
	return &PostmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.From,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, to, subject, body string) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  subject,
		TextBody: body,
		Tag:      "plan-limit",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogSender 只写日志，开发环境使用
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("email suppressed",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}

// OverLimitMessage 条目数超出套餐上限的提醒
func OverLimitMessage(name, plan string, ceiling, count int64) (subject, body string) {
	subject = "Your library is over your plan limit"
	body = fmt.Sprintf(`Hi %s,

Your library currently holds %d items, but the %s plan includes up to %d.

Existing items stay available. To add more, remove some items or upgrade
your plan from the subscription page.

This message was sent automatically, please do not reply.
`, name, count, plan, ceiling)
	return subject, body
}
