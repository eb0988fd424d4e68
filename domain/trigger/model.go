// Package trigger describes the dispatch record the Alert Engine attaches
// to each notification attempt: which channel fired, under what rule, and
// whether the attempt succeeded. It gives the orchestrator and its tests a
// uniform shape for "what was sent where" independent of the channel's own
// wire format (SMTP, webhook JSON, chat payload).
package trigger

import "time"

// Kind identifies which channel a dispatch record describes.
type Kind string

const (
	KindConsole Kind = "console"
	KindEmail   Kind = "email"
	KindWebhook Kind = "webhook"
	KindChat    Kind = "chat"
)

// Dispatch records one attempt to deliver an alert through a channel.
type Dispatch struct {
	AlertID   string
	RuleName  string
	Kind      Kind
	Target    string // destination address/URL/channel name, for audit logs
	Succeeded bool
	Error     string
	SentAt    time.Time
}
