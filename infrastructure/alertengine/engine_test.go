package alertengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/domain/telemetry"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

type recordingChannel struct {
	mu    sync.Mutex
	name  alerting.Channel
	sent  []alerting.Alert
	err   error
}

func (c *recordingChannel) Name() alerting.Channel { return c.name }

func (c *recordingChannel) Send(ctx context.Context, alert alerting.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, alert)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func snapshotWithCPU(ts time.Time, cpu float64) telemetry.MetricSnapshot {
	return telemetry.MetricSnapshot{TimestampMS: ts.UnixMilli(), Host: telemetry.HostMetrics{CPUPercent: cpu}}
}

func newTestEngine(rule alerting.ThresholdRule, console *recordingChannel) *Engine {
	cfg := Config{Enabled: true, Rules: []alerting.ThresholdRule{rule}, MaxAlertsPerHour: 50, AlertRetentionDays: 30}
	channels := map[alerting.Channel]Channel{alerting.ChannelConsole: console}
	return New(cfg, channels, logging.New("alertengine-test", "error", "text"))
}

func TestEngine_RequiresDurationBeforeFiring(t *testing.T) {
	rule := alerting.ThresholdRule{
		Name: "high-cpu", Severity: alerting.SeverityWarning, Enabled: true,
		Field: alerting.FieldCPUUsage, Comparator: alerting.ComparatorGreaterThan, Threshold: 80,
		Duration: 2 * time.Minute, Channels: []alerting.Channel{alerting.ChannelConsole},
	}
	ch := &recordingChannel{name: alerting.ChannelConsole}
	e := newTestEngine(rule, ch)

	base := time.Now().UTC()
	e.OnSnapshot(snapshotWithCPU(base, 95))
	if ch.count() != 0 {
		t.Fatalf("expected no alert before duration elapses, got %d", ch.count())
	}

	time.Sleep(10 * time.Millisecond)
	e.OnSnapshot(snapshotWithCPU(base.Add(3*time.Minute), 95))

	deadline := time.Now().Add(time.Second)
	for ch.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ch.count() != 1 {
		t.Fatalf("expected 1 dispatched alert after duration elapsed, got %d", ch.count())
	}
}

func TestEngine_FalseBeforeDurationResetsState(t *testing.T) {
	rule := alerting.ThresholdRule{
		Name: "high-cpu", Severity: alerting.SeverityWarning, Enabled: true,
		Field: alerting.FieldCPUUsage, Comparator: alerting.ComparatorGreaterThan, Threshold: 80,
		Duration: time.Minute, Channels: []alerting.Channel{alerting.ChannelConsole},
	}
	ch := &recordingChannel{name: alerting.ChannelConsole}
	e := newTestEngine(rule, ch)

	base := time.Now().UTC()
	e.OnSnapshot(snapshotWithCPU(base, 95))
	e.OnSnapshot(snapshotWithCPU(base.Add(10*time.Second), 10))
	e.OnSnapshot(snapshotWithCPU(base.Add(2*time.Minute), 95))

	time.Sleep(20 * time.Millisecond)
	if ch.count() != 0 {
		t.Fatalf("expected a false reading to reset the pending state, got %d dispatches", ch.count())
	}

	e.mu.Lock()
	state := e.states["high-cpu"]
	e.mu.Unlock()
	if state.State != alerting.StatePending {
		t.Errorf("expected re-triggered rule to be pending again, got %v", state.State)
	}
}

func TestEngine_CooldownSuppressesRefiring(t *testing.T) {
	rule := alerting.ThresholdRule{
		Name: "high-cpu", Severity: alerting.SeverityWarning, Enabled: true,
		Field: alerting.FieldCPUUsage, Comparator: alerting.ComparatorGreaterThan, Threshold: 80,
		Duration: 0, Cooldown: time.Hour, Channels: []alerting.Channel{alerting.ChannelConsole},
	}
	ch := &recordingChannel{name: alerting.ChannelConsole}
	e := newTestEngine(rule, ch)

	base := time.Now().UTC()
	e.OnSnapshot(snapshotWithCPU(base, 95))
	e.OnSnapshot(snapshotWithCPU(base.Add(time.Minute), 96))

	time.Sleep(20 * time.Millisecond)
	if ch.count() != 1 {
		t.Fatalf("expected cooldown to suppress the second firing, got %d dispatches", ch.count())
	}
}

func TestEngine_RateLimitCapsAlertsPerHour(t *testing.T) {
	rule := alerting.ThresholdRule{
		Name: "high-cpu", Severity: alerting.SeverityWarning, Enabled: true,
		Field: alerting.FieldCPUUsage, Comparator: alerting.ComparatorGreaterThan, Threshold: 80,
		Duration: 0, Cooldown: 0, MaxAlertsPerHour: 2, Channels: []alerting.Channel{alerting.ChannelConsole},
	}
	ch := &recordingChannel{name: alerting.ChannelConsole}
	e := newTestEngine(rule, ch)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		e.OnSnapshot(snapshotWithCPU(base.Add(time.Duration(i)*time.Second), 95))
	}

	time.Sleep(20 * time.Millisecond)
	if ch.count() > 2 {
		t.Fatalf("expected at most 2 alerts per hour, got %d", ch.count())
	}
}

func TestEngine_AcknowledgeUnknownAlertErrors(t *testing.T) {
	e := newTestEngine(alerting.ThresholdRule{Name: "r"}, &recordingChannel{name: alerting.ChannelConsole})
	if err := e.Acknowledge("does-not-exist"); err == nil {
		t.Error("expected acknowledging an unknown alert id to error")
	}
}

func TestEngine_ResolveIsIdempotent(t *testing.T) {
	e := newTestEngine(alerting.ThresholdRule{Name: "r"}, &recordingChannel{name: alerting.ChannelConsole})
	alert := e.CreateManual(alerting.SeverityInfo, "cat", "title", "msg", nil)

	if err := e.Resolve(alert.ID); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	if err := e.Resolve(alert.ID); err != nil {
		t.Fatalf("second Resolve should be idempotent, got: %v", err)
	}
}

func TestEngine_TestChannelsReportsPerChannelResult(t *testing.T) {
	ch := &recordingChannel{name: alerting.ChannelConsole}
	e := newTestEngine(alerting.ThresholdRule{Name: "r"}, ch)

	results := e.TestChannels(context.Background())
	if !results[alerting.ChannelConsole] {
		t.Error("expected console channel self-test to succeed")
	}
}

func TestEngine_CleanupEvictsOldAlerts(t *testing.T) {
	e := newTestEngine(alerting.ThresholdRule{Name: "r"}, &recordingChannel{name: alerting.ChannelConsole})
	alert := e.CreateManual(alerting.SeverityInfo, "cat", "title", "msg", nil)

	e.mu.Lock()
	e.alerts[alert.ID].CreatedAt = time.Now().UTC().AddDate(0, 0, -40)
	e.mu.Unlock()

	evicted := e.Cleanup()
	if evicted != 1 {
		t.Errorf("expected 1 alert evicted, got %d", evicted)
	}
}
