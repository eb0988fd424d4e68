package channel

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/R3E-Network/service_layer/domain/alerting"
)

// Email sends alerts over SMTP. No library in the reference pack covers
// SMTP transport, so this one concern uses the standard library's net/smtp
// directly (see DESIGN.md).
type Email struct {
	cfg EmailConfig
}

func NewEmail(cfg EmailConfig) *Email {
	return &Email{cfg: cfg}
}

func (e *Email) Name() alerting.Channel { return alerting.ChannelEmail }

func (e *Email) Send(ctx context.Context, alert alerting.Alert) error {
	if !e.cfg.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	subject := e.cfg.Subject
	if subject == "" {
		subject = fmt.Sprintf("%s %s", severityLabel(alert.Severity), alert.Title)
	}

	body := fmt.Sprintf("Subject: %s\r\n\r\n%s\n\n%s\n", subject, alert.Title, alert.Message)

	var auth smtp.Auth
	if e.cfg.User != "" {
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Pass, e.cfg.Host)
	}

	return smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(strings.ReplaceAll(body, "\n", "\r\n")))
}
