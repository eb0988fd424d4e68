// Package channel implements the four notification sinks the Alert Engine
// fans alerts out to: console, email, webhook, and chat.
package channel

import (
	"github.com/R3E-Network/service_layer/domain/alerting"
)

// Config is the closed configuration surface for all four channels,
// mirroring spec.md §6's `alerts.channels` block.
type Config struct {
	Console ConsoleConfig
	Email   EmailConfig
	Webhook WebhookConfig
	Chat    ChatConfig
}

// ConsoleConfig configures the console channel.
type ConsoleConfig struct {
	Enabled bool
	Colors  bool
}

// EmailConfig configures the email channel's SMTP transport.
type EmailConfig struct {
	Enabled bool
	Host    string
	Port    int
	TLS     bool
	User    string
	Pass    string
	From    string
	To      []string
	Subject string
}

// WebhookConfig configures the webhook channel's HTTP transport and retry
// policy.
type WebhookConfig struct {
	Enabled    bool
	URL        string
	Method     string
	Headers    map[string]string
	Timeout    int // milliseconds
	Retries    int

	// MaxPerSecond bounds dispatch attempts (including retries) against this
	// endpoint; zero uses the package default. A storm of rapid-fire alerts
	// must not turn into a self-inflicted denial of service on the receiver.
	MaxPerSecond float64
}

// ChatConfig configures the chat (incoming-webhook style) channel.
type ChatConfig struct {
	Enabled    bool
	WebhookURL string
	Channel    string
	Username   string
	Icon       string
}

func severityLabel(sev alerting.Severity) string {
	switch sev {
	case alerting.SeverityEmergency:
		return "[EMERGENCY]"
	case alerting.SeverityCritical:
		return "[CRITICAL]"
	case alerting.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}
