package controlplane

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/domain/automation"
	"github.com/R3E-Network/service_layer/domain/probe"
	"github.com/R3E-Network/service_layer/domain/telemetry"
	"github.com/R3E-Network/service_layer/infrastructure/alertengine"
	"github.com/R3E-Network/service_layer/infrastructure/alertengine/channel"
	svccfg "github.com/R3E-Network/service_layer/infrastructure/config"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/failoverengine"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/metrics"
	"github.com/R3E-Network/service_layer/infrastructure/recoveryengine"
	"github.com/R3E-Network/service_layer/infrastructure/retention"
	"github.com/R3E-Network/service_layer/infrastructure/sampler"
	"github.com/R3E-Network/service_layer/infrastructure/service"
	"github.com/R3E-Network/service_layer/infrastructure/standby"
	"github.com/R3E-Network/service_layer/infrastructure/validator"
	"github.com/R3E-Network/service_layer/applications/system"
)

// HealthState is the three-state rollup spec.md §7's propagation policy
// describes: the orchestrator never re-surfaces a component's transient
// I/O error past its own boundary, instead folding everything into this.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthWarning  HealthState = "warning"
	HealthCritical HealthState = "critical"
)

// StatusReport is the `status` command's payload.
type StatusReport struct {
	State      HealthState            `json:"state"`
	UptimeS    float64                `json:"uptime_s"`
	Components map[string]string      `json:"components"`
	Counters   map[string]any         `json:"counters"`
	Reasons    []string               `json:"reasons,omitempty"`
}

// ZeroDomainSource is the default sampler.DomainSource: computing real
// trading-platform domain metrics is explicitly out of scope (spec.md §1's
// non-goals), so it reports an all-zero block. A deployment with an actual
// trading engine supplies its own DomainSource to ControlPlane.New instead.
type ZeroDomainSource struct{}

func (ZeroDomainSource) DomainMetrics(ctx context.Context) (telemetry.DomainMetrics, error) {
	return telemetry.DomainMetrics{}, nil
}

// ControlPlane wires every control-plane component into one lifecycle and
// exposes the operations the CLI drives.
type ControlPlane struct {
	cfg Config
	log *logging.Logger

	manager *system.Manager

	sampler         *sampler.Sampler
	retentionStore  *retention.Store
	alertEngine     *alertengine.Engine
	validatorRunner *validator.Validator
	recoveryEngine  *recoveryengine.Engine
	failoverEngine  *failoverengine.Engine
	standbyManager  standby.Manager
	configMutator   *failoverengine.InProcessConfigMutator
	probes          *service.ProbeManager
	services        *svccfg.ServicesConfig

	startedAt time.Time
}

// New wires all six components using the given Config. source supplies the
// domain metric block on every sampler tick; pass ZeroDomainSource{} when
// no trading engine is attached to this process.
func New(cfg Config, source sampler.DomainSource, log *logging.Logger) (*ControlPlane, error) {
	if source == nil {
		source = ZeroDomainSource{}
	}

	cp := &ControlPlane{
		cfg:      cfg,
		log:      log,
		manager:  system.NewManager(),
		probes:   service.NewProbeManager(30 * time.Second),
		services: loadServicesConfig(cfg.ComponentsConfigPath),
	}

	cp.sampler = sampler.New(cfg.samplerConfig(), source, log)
	cp.retentionStore = retention.New(cfg.retentionConfig(), log)
	if cp.services.IsEnabled("retention") {
		cp.sampler.Subscribe(cp.retentionStore)
	}

	channelSet := buildChannels(cfg.channelConfig())
	cp.alertEngine = alertengine.New(cfg.alertEngineConfig(), channelSet, log)
	if cp.services.IsEnabled("alertengine") {
		cp.sampler.Subscribe(cp.alertEngine)
	}

	cp.validatorRunner = validator.New(cfg.validatorConfig())

	cp.standbyManager = standby.NewInProcessManager()
	cp.configMutator = failoverengine.NewInProcessConfigMutator()

	recEngine, err := recoveryengine.New(cfg.recoveryEngineConfig(), cp.standbyManager, log)
	if err != nil {
		return nil, err
	}
	cp.recoveryEngine = recEngine

	failoverCfg, err := cfg.failoverEngineConfig()
	if err != nil {
		return nil, err
	}
	failEngine, err := failoverengine.New(failoverCfg, cp.standbyManager, cp.alertEngine, cp.configMutator, log)
	if err != nil {
		return nil, err
	}
	cp.failoverEngine = failEngine

	allServices := []system.Service{cp.sampler, cp.retentionStore, cp.alertEngine, cp.recoveryEngine, cp.failoverEngine}
	for _, svc := range allServices {
		if !cp.services.IsEnabled(svc.Name()) {
			continue
		}
		if err := cp.manager.Register(svc); err != nil {
			return nil, ctlerrors.ConfigError(err.Error())
		}
	}

	if metrics.Enabled() {
		metrics.Init(cfg.ServiceName)
	}

	return cp, nil
}

// loadServicesConfig resolves the component enable/disable toggle file: a
// configured path overlays the control plane's own default (every
// orchestrator-managed component enabled), matching the teacher's
// fall-back-to-default behavior for a toggle file that isn't present.
func loadServicesConfig(path string) *svccfg.ServicesConfig {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		if cfg, err := svccfg.LoadServicesConfigFromPath(trimmed); err == nil {
			return cfg
		}
	}
	return svccfg.DefaultServicesConfig()
}

func buildChannels(cfg channel.Config) map[alerting.Channel]alertengine.Channel {
	out := make(map[alerting.Channel]alertengine.Channel, 4)
	if cfg.Console.Enabled {
		c := channel.NewConsole(cfg.Console, os.Stdout)
		out[c.Name()] = c
	}
	if cfg.Email.Enabled {
		c := channel.NewEmail(cfg.Email)
		out[c.Name()] = c
	}
	if cfg.Webhook.Enabled {
		c := channel.NewWebhook(cfg.Webhook)
		out[c.Name()] = c
	}
	if cfg.Chat.Enabled {
		c := channel.NewChat(cfg.Chat)
		out[c.Name()] = c
	}
	return out
}

// Start begins every registered component's lifecycle in dependency order
// and records the start time uptime is measured from.
func (cp *ControlPlane) Start(ctx context.Context) error {
	cp.startedAt = time.Now().UTC()
	if err := cp.manager.Start(ctx); err != nil {
		cp.probes.SetLive(false)
		return err
	}
	cp.probes.SetReady(true)
	return nil
}

// Stop halts every registered component in reverse order.
func (cp *ControlPlane) Stop(ctx context.Context) error {
	cp.probes.SetReady(false)
	return cp.manager.Stop(ctx)
}

// Status aggregates every component's readiness into the three-state
// rollup spec.md §7 describes: healthy iff every component is ready,
// warning if at least one LifecycleService reports not-ready, critical if
// any component's Ready call returns a fatal-kind error.
func (cp *ControlPlane) Status(ctx context.Context) StatusReport {
	report := StatusReport{
		State:      HealthHealthy,
		Components: make(map[string]string),
		Counters:   make(map[string]any),
	}
	if !cp.startedAt.IsZero() {
		report.UptimeS = time.Since(cp.startedAt).Seconds()
		if metrics.Enabled() {
			metrics.Global().UpdateUptime(cp.startedAt)
		}
	}

	checks := []system.LifecycleService{cp.sampler, cp.retentionStore, cp.alertEngine, cp.recoveryEngine, cp.failoverEngine}
	for _, svc := range checks {
		if !cp.services.IsEnabled(svc.Name()) {
			report.Components[svc.Name()] = "disabled"
			continue
		}
		if err := svc.Ready(ctx); err != nil {
			report.Components[svc.Name()] = "not-ready"
			if ctlerrors.Is(err, ctlerrors.KindFatal) {
				report.State = HealthCritical
			} else if report.State == HealthHealthy {
				report.State = HealthWarning
			}
			report.Reasons = append(report.Reasons, svc.Name()+": "+err.Error())
			continue
		}
		report.Components[svc.Name()] = "ready"
	}

	report.Counters["retention"] = cp.retentionStore.Stats()
	report.Counters["alerts"] = cp.alertEngine.Stats()
	report.Counters["schedules"] = cp.Schedules()
	report.Counters["dispatches"] = cp.alertEngine.Dispatches()

	// A component that is merely slow to come up during the startup grace
	// period is not yet a critical failure; it hasn't had time to report
	// ready. Downgrade a critical verdict to warning while still starting.
	if report.State == HealthCritical && !cp.probes.IsReady() && cp.probes.InStartupGrace() {
		report.State = HealthWarning
		report.Reasons = append(report.Reasons, "still within startup grace period")
	}

	return report
}

// TriggerAlert raises a synthetic alert at the given severity, exercising
// the `trigger-alert <severity>` CLI command.
func (cp *ControlPlane) TriggerAlert(severity alerting.Severity) alerting.Alert {
	return cp.alertEngine.CreateManual(severity, "manual", "synthetic alert", "operator-triggered test alert", nil)
}

// TestChannels exercises every configured notification channel.
func (cp *ControlPlane) TestChannels(ctx context.Context) map[alerting.Channel]bool {
	return cp.alertEngine.TestChannels(ctx)
}

// Maintenance forces a compression-then-eviction pass on the retention
// store, for the `maintenance` CLI command.
func (cp *ControlPlane) Maintenance() (compressed, evicted int, totalBytes int64, err error) {
	compressed, err = cp.retentionStore.CompressAged()
	if err != nil {
		return compressed, 0, 0, err
	}
	evicted, err = cp.retentionStore.EvictAged()
	if err != nil {
		return compressed, evicted, 0, err
	}
	totalBytes, err = cp.retentionStore.TotalBytes()
	return compressed, evicted, totalBytes, err
}

// Export returns every snapshot retained within the last N days, for the
// `export <days> <path>` CLI command to serialize.
func (cp *ControlPlane) Export(days int) ([]telemetry.MetricSnapshot, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	return cp.retentionStore.Query(from, to)
}

// RunValidation runs every declared probe, for a future `validate` CLI
// command. The recovery and failover engines do not call it; they read
// component health from the Standby Manager.
func (cp *ControlPlane) RunValidation(ctx context.Context, quick bool) probe.Report {
	return cp.validatorRunner.Run(ctx, quick)
}

// Failover passes a manual failover request straight to the Standby
// Manager, for the `failover <component> <reason>` CLI command.
func (cp *ControlPlane) Failover(ctx context.Context, component, reason string) (standby.FailoverResult, error) {
	return cp.standbyManager.ManualFailover(ctx, component, reason)
}

// Components lists the configured recovery components, for the
// `components` CLI command.
func (cp *ControlPlane) Components() []string {
	names := make([]string, 0, len(cp.cfg.Recovery.Components))
	for _, c := range cp.cfg.Recovery.Components {
		names = append(names, c.Name)
	}
	return names
}

// Rules lists the configured failover rule IDs, for the `rules` CLI
// command.
func (cp *ControlPlane) Rules() []string {
	ids := make([]string, 0, len(cp.cfg.Failover.Rules))
	for _, r := range cp.cfg.Failover.Rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// Schedules reports every periodic task's scheduling metadata: the
// Sampler's tick, the Retention Store's cleanup and compression passes, and
// the Failover Engine's evaluation loop.
func (cp *ControlPlane) Schedules() []automation.Schedule {
	out := []automation.Schedule{cp.sampler.Schedule()}
	out = append(out, cp.retentionStore.Schedules()...)
	out = append(out, cp.failoverEngine.Schedule())
	return out
}

// SetComponentHealth seeds the in-process Standby Manager; exposed for
// deployments that poll their own topology watcher and feed results in,
// and for tests exercising the CLI against deterministic health state.
func (cp *ControlPlane) SetComponentHealth(h standby.Health) {
	if m, ok := cp.standbyManager.(*standby.InProcessManager); ok {
		m.SetHealth(h)
	}
}
