package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

// Message is a single transactional email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	Text     string
	HTML     string
	Category string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var errRecipientRequired = errors.New("email recipient is required")

// New returns a SendGrid sender, or a logging sender when no API key is configured.
func New(cfg config.SendgridConfig, logg *logger.Logger) Sender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		if logg != nil {
			logg.Warn(context.Background(), "sendgrid api key not configured; emails will only be logged")
		}
		return &LogSender{logg: logg}
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
		logg:   logg,
	}
}

type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logg   *logger.Logger
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errRecipientRequired
	}
	to := mail.NewEmail(msg.ToName, msg.To)
	body := mail.NewSingleEmail(s.from, msg.Subject, to, msg.Text, msg.HTML)
	if msg.Category != "" {
		body.AddCategories(msg.Category)
	}

	resp, err := s.client.SendWithContext(ctx, body)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, truncate(resp.Body, 256))
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"category": msg.Category, "status": resp.StatusCode}), "email sent")
	}
	return nil
}

// LogSender records the email instead of sending it.
type LogSender struct {
	logg *logger.Logger
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errRecipientRequired
	}
	if l.logg != nil {
		l.logg.Info(l.logg.WithFields(ctx, map[string]any{
			"to":       msg.To,
			"subject":  msg.Subject,
			"category": msg.Category,
		}), "email delivery skipped (no provider)")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
