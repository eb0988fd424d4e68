package channel

import (
	"context"
	"fmt"
	"io"

	"github.com/R3E-Network/service_layer/domain/alerting"
)

// Console writes alerts to an io.Writer (stdout in production).
type Console struct {
	cfg ConsoleConfig
	out io.Writer
}

func NewConsole(cfg ConsoleConfig, out io.Writer) *Console {
	return &Console{cfg: cfg, out: out}
}

func (c *Console) Name() alerting.Channel { return alerting.ChannelConsole }

func (c *Console) Send(ctx context.Context, alert alerting.Alert) error {
	if !c.cfg.Enabled {
		return nil
	}
	_, err := fmt.Fprintf(c.out, "%s %s: %s\n", severityLabel(alert.Severity), alert.Title, alert.Message)
	return err
}
