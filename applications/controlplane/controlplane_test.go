package controlplane

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/standby"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	cfg.Retention.StorageDir = filepath.Join(t.TempDir(), "metrics")
	cfg.Sampler.IntervalMS = 50
	cfg.Failover.EvaluateIntervalMS = 50
	return cfg
}

func testLogger() *logging.Logger {
	return logging.New("controlplane-test", "error", "text")
}

func newTestControlPlane(t *testing.T) *ControlPlane {
	t.Helper()
	cp, err := New(testConfig(t), nil, testLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return cp
}

func TestNew_WiresEveryComponent(t *testing.T) {
	cp := newTestControlPlane(t)
	if cp.sampler == nil || cp.retentionStore == nil || cp.alertEngine == nil ||
		cp.validatorRunner == nil || cp.recoveryEngine == nil || cp.failoverEngine == nil {
		t.Fatalf("expected every component to be constructed")
	}
}

func TestControlPlane_StartStop(t *testing.T) {
	cp := newTestControlPlane(t)
	ctx := context.Background()

	if err := cp.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer cp.Stop(ctx)

	report := cp.Status(ctx)
	if report.State != HealthHealthy {
		t.Fatalf("expected healthy status once started, got %s (reasons: %v)", report.State, report.Reasons)
	}
	for _, name := range []string{"sampler", "retention", "alertengine", "recoveryengine", "failoverengine"} {
		if report.Components[name] != "ready" {
			t.Fatalf("expected %s to be ready, got %q", name, report.Components[name])
		}
	}

	if err := cp.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}

func TestControlPlane_StatusBeforeStartIsNotHealthy(t *testing.T) {
	cp := newTestControlPlane(t)
	report := cp.Status(context.Background())
	if report.State == HealthHealthy {
		t.Fatalf("expected a not-yet-started control plane to report something other than healthy")
	}
}

func TestControlPlane_TriggerAlert(t *testing.T) {
	cp := newTestControlPlane(t)
	alert := cp.TriggerAlert(alerting.SeverityCritical)
	if alert.Severity != alerting.SeverityCritical {
		t.Fatalf("expected triggered alert to carry the requested severity, got %s", alert.Severity)
	}
	if alert.ID == "" {
		t.Fatalf("expected triggered alert to have an ID")
	}
}

func TestControlPlane_Maintenance(t *testing.T) {
	cp := newTestControlPlane(t)
	compressed, evicted, total, err := cp.Maintenance()
	if err != nil {
		t.Fatalf("Maintenance returned error: %v", err)
	}
	if compressed != 0 || evicted != 0 || total != 0 {
		t.Fatalf("expected a no-op maintenance pass on an empty store, got compressed=%d evicted=%d total=%d", compressed, evicted, total)
	}
}

func TestControlPlane_Export(t *testing.T) {
	cp := newTestControlPlane(t)
	snapshots, err := cp.Export(7)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if len(snapshots) != 0 {
		t.Fatalf("expected no snapshots from an empty store, got %d", len(snapshots))
	}
}

func TestControlPlane_Failover(t *testing.T) {
	cp := newTestControlPlane(t)
	cp.SetComponentHealth(standby.Health{Component: "db", Status: standby.StatusUnhealthy})

	result, err := cp.Failover(context.Background(), "db", "manual test")
	if err != nil {
		t.Fatalf("Failover returned error: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected the in-process standby manager to report success")
	}
}

func TestControlPlane_ComponentsAndRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recovery.Components = []RecoveryComponentConfig{{Name: "db"}, {Name: "cache"}}
	cfg.Failover.Rules = []FailoverRuleConfig{{ID: "rule-a"}, {ID: "rule-b"}}

	cp, err := New(cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	components := cp.Components()
	if len(components) != 2 || components[0] != "db" || components[1] != "cache" {
		t.Fatalf("expected configured recovery components, got %v", components)
	}

	rules := cp.Rules()
	if len(rules) != 2 || rules[0] != "rule-a" || rules[1] != "rule-b" {
		t.Fatalf("expected configured failover rule ids, got %v", rules)
	}
}

func TestControlPlane_Schedules(t *testing.T) {
	cp := newTestControlPlane(t)
	ctx := context.Background()

	if err := cp.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer cp.Stop(ctx)

	time.Sleep(100 * time.Millisecond)

	schedules := cp.Schedules()
	if len(schedules) != 4 {
		t.Fatalf("expected sampler + 2 retention timers + failover engine schedules, got %d", len(schedules))
	}
	for _, s := range schedules {
		if s.TaskName == "" {
			t.Fatalf("expected every schedule to carry a task name")
		}
	}
}

func TestControlPlane_TestChannels(t *testing.T) {
	cp := newTestControlPlane(t)
	results := cp.TestChannels(context.Background())
	if len(results) != 0 {
		t.Fatalf("expected no configured channels by default, got %v", results)
	}
}

func TestControlPlane_DisabledComponentIsNeverStarted(t *testing.T) {
	dir := t.TempDir()
	toggle := filepath.Join(dir, "components.yaml")
	body := "services:\n" +
		"  sampler:\n    enabled: true\n" +
		"  retention:\n    enabled: false\n" +
		"  alertengine:\n    enabled: true\n" +
		"  recoveryengine:\n    enabled: true\n" +
		"  failoverengine:\n    enabled: true\n"
	if err := os.WriteFile(toggle, []byte(body), 0o644); err != nil {
		t.Fatalf("write toggle fixture: %v", err)
	}

	cfg := testConfig(t)
	cfg.ComponentsConfigPath = toggle

	cp, err := New(cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := context.Background()
	if err := cp.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer cp.Stop(ctx)

	report := cp.Status(ctx)
	if report.Components["retention"] != "disabled" {
		t.Fatalf("expected retention to report disabled, got %q", report.Components["retention"])
	}
	if report.Components["sampler"] != "ready" {
		t.Fatalf("expected sampler to still be ready, got %q", report.Components["sampler"])
	}
}
