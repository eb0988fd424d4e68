package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/service_layer/domain/alerting"
)

// Chat posts to an incoming-webhook style chat endpoint (Slack/Discord/Teams
// compatible payload shape: text + username + icon).
type Chat struct {
	cfg    ChatConfig
	client *http.Client
}

func NewChat(cfg ChatConfig) *Chat {
	return &Chat{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Chat) Name() alerting.Channel { return alerting.ChannelChat }

type chatPayload struct {
	Text     string `json:"text"`
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

func (c *Chat) Send(ctx context.Context, alert alerting.Alert) error {
	if !c.cfg.Enabled {
		return nil
	}

	payload := chatPayload{
		Text:     fmt.Sprintf("%s %s: %s", severityLabel(alert.Severity), alert.Title, alert.Message),
		Channel:  c.cfg.Channel,
		Username: c.cfg.Username,
		IconURL:  c.cfg.Icon,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}
	return nil
}
