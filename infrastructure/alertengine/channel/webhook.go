package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/infrastructure/ratelimit"
	"github.com/R3E-Network/service_layer/infrastructure/resilience"
)

// httpDoer is the subset of *http.Client that Webhook depends on, letting a
// rate-limited decorator stand in transparently.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook posts alerts to an HTTP endpoint, retrying on a non-2xx response
// or network error with exponential backoff doubling from 1 s, reset on
// success, per spec.md §4.C. Dispatch attempts (including retries) are
// throttled per endpoint so a burst of firing rules can't hammer a single
// receiver.
type Webhook struct {
	cfg    WebhookConfig
	client httpDoer
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	perSecond := cfg.MaxPerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	limited := ratelimit.NewRateLimitedClient(&http.Client{Timeout: timeout}, ratelimit.RateLimitConfig{
		RequestsPerSecond: perSecond,
		Burst:             int(perSecond),
	})
	return &Webhook{cfg: cfg, client: limited}
}

func (w *Webhook) Name() alerting.Channel { return alerting.ChannelWebhook }

func (w *Webhook) Send(ctx context.Context, alert alerting.Alert) error {
	if !w.cfg.Enabled {
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	method := w.cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	retries := w.cfg.Retries
	if retries <= 0 {
		retries = 3
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:  retries + 1,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	return resilience.Retry(ctx, retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, method, w.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}
