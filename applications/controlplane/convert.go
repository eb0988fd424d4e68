package controlplane

import (
	"fmt"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/domain/failover"
	"github.com/R3E-Network/service_layer/domain/probe"
	"github.com/R3E-Network/service_layer/domain/recovery"
	"github.com/R3E-Network/service_layer/infrastructure/alertengine"
	"github.com/R3E-Network/service_layer/infrastructure/alertengine/channel"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/failoverengine"
	"github.com/R3E-Network/service_layer/infrastructure/recoveryengine"
	"github.com/R3E-Network/service_layer/infrastructure/retention"
	"github.com/R3E-Network/service_layer/infrastructure/runtime"
	"github.com/R3E-Network/service_layer/infrastructure/sampler"
	"github.com/R3E-Network/service_layer/infrastructure/validator"
)

func (c Config) samplerConfig() sampler.Config {
	interval := msToDuration(c.Sampler.IntervalMS)
	if interval <= 0 {
		interval = sampler.DefaultConfig().Interval
	}
	return sampler.Config{
		Interval:            interval,
		EnableHostMetrics:   c.Sampler.EnableHostMetrics,
		EnableDomainMetrics: c.Sampler.EnableDomainMetrics,
		DiskPath:            runtime.ResolveString("", "CONTROLPLANE_SAMPLER_DISK_PATH", "/"),
	}
}

func (c Config) retentionConfig() retention.Config {
	def := retention.DefaultConfig()
	cfg := retention.Config{
		StorageDir:        c.Retention.StorageDir,
		RetentionDays:     c.Retention.RetentionDays,
		CompressAfterDays: c.Retention.CompressAfterDays,
		CleanupInterval:   msToDuration(c.Retention.CleanupIntervalMS),
		CompressInterval:  msToDuration(c.Retention.CompressIntervalMS),
		MaxBytes:          c.Retention.MaxBytes,
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.CompressAfterDays <= 0 {
		cfg.CompressAfterDays = def.CompressAfterDays
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.CompressInterval <= 0 {
		cfg.CompressInterval = def.CompressInterval
	}
	return cfg
}

func alertSeverity(raw string) alerting.Severity {
	switch raw {
	case string(alerting.SeverityWarning):
		return alerting.SeverityWarning
	case string(alerting.SeverityCritical):
		return alerting.SeverityCritical
	case string(alerting.SeverityEmergency):
		return alerting.SeverityEmergency
	default:
		return alerting.SeverityInfo
	}
}

func alertChannels(raw []string) []alerting.Channel {
	out := make([]alerting.Channel, 0, len(raw))
	for _, r := range raw {
		out = append(out, alerting.Channel(r))
	}
	return out
}

func (c Config) alertRules() []alerting.ThresholdRule {
	rules := make([]alerting.ThresholdRule, 0, len(c.Alerts.Rules))
	for _, r := range c.Alerts.Rules {
		rules = append(rules, alerting.ThresholdRule{
			Name:             r.Name,
			Category:         r.Category,
			Severity:         alertSeverity(r.Severity),
			Field:            alerting.Field(r.Field),
			Comparator:       alerting.Comparator(r.Comparator),
			Threshold:        r.Threshold,
			Expression:       r.Expression,
			Duration:         msToDuration(r.DurationMS),
			Cooldown:         msToDuration(r.CooldownMS),
			MaxAlertsPerHour: r.MaxAlertsPerHour,
			Channels:         alertChannels(r.Channels),
			Enabled:          r.Enabled,
		})
	}
	return rules
}

func (c Config) alertEngineConfig() alertengine.Config {
	def := alertengine.DefaultConfig()
	cfg := alertengine.Config{
		Enabled:            c.Alerts.Enabled,
		Rules:               c.alertRules(),
		MaxAlertsPerHour:    c.Alerts.MaxAlertsPerHour,
		AlertRetentionDays:  c.Alerts.AlertRetentionDays,
	}
	if cfg.MaxAlertsPerHour <= 0 {
		cfg.MaxAlertsPerHour = def.MaxAlertsPerHour
	}
	if cfg.AlertRetentionDays <= 0 {
		cfg.AlertRetentionDays = def.AlertRetentionDays
	}
	return cfg
}

func (c Config) channelConfig() channel.Config {
	cc := c.Alerts.Channels
	cfg := channel.Config{
		Console: channel.ConsoleConfig{
			Enabled: cc.Console.Enabled,
			Colors:  cc.Console.Colors,
		},
		Email: channel.EmailConfig{
			Enabled: cc.Email.Enabled,
			Host:    cc.Email.SMTP.Host,
			Port:    cc.Email.SMTP.Port,
			TLS:     cc.Email.SMTP.TLS,
			User:    cc.Email.SMTP.User,
			Pass:    cc.Email.SMTP.Pass,
			From:    cc.Email.From,
			To:      cc.Email.To,
			Subject: cc.Email.Subject,
		},
		Webhook: channel.WebhookConfig{
			Enabled:      cc.Webhook.Enabled,
			URL:          cc.Webhook.URL,
			Method:       cc.Webhook.Method,
			Headers:      cc.Webhook.Headers,
			Timeout:      cc.Webhook.TimeoutMS,
			Retries:      cc.Webhook.Retries,
			MaxPerSecond: cc.Webhook.MaxPerSecond,
		},
		Chat: channel.ChatConfig{
			Enabled:    cc.Chat.Enabled,
			WebhookURL: cc.Chat.WebhookURL,
			Channel:    cc.Chat.Channel,
			Username:   cc.Chat.Username,
			Icon:       cc.Chat.Icon,
		},
	}
	return cfg
}

func (c Config) validatorConfig() validator.Config {
	def := validator.DefaultConfig()
	cfg := validator.Config{
		OverallTimeout: secToDuration(c.Validator.OverallTimeoutS),
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = def.OverallTimeout
	}
	for _, s := range c.Validator.Services {
		cfg.Services = append(cfg.Services, probe.ServiceProbe{
			Name:     s.Name,
			Protocol: probe.ServiceProtocol(s.Protocol),
			Target:   s.Target,
			Timeout:  msToDuration(s.TimeoutMS),
			Critical: s.Critical,
		})
	}
	if c.Validator.KV != nil {
		cfg.KV = &probe.KVProbeSpec{
			Host:       c.Validator.KV.Host,
			Port:       c.Validator.KV.Port,
			Password:   c.Validator.KV.Password,
			Timeout:    msToDuration(c.Validator.KV.TimeoutMS),
			TestPubSub: c.Validator.KV.TestPubSub,
		}
	}
	for _, s := range c.Validator.Streams {
		cfg.Streams = append(cfg.Streams, probe.StreamProbeSpec{
			Name:              s.Name,
			URL:               s.URL,
			Timeout:           msToDuration(s.TimeoutMS),
			ProbeMessage:      s.ProbeMessage,
			ExpectedSubstring: s.ExpectedSubstring,
		})
	}
	return cfg
}

// failoverRules converts the on-disk rule list, rejecting any rule that
// violates spec.md §3's invariants at configuration load rather than
// letting it degrade silently at evaluation time: every rule must declare
// at least one condition and at least one action (an empty-condition rule
// would otherwise evaluate via Confidence(0, 0, ...) straight to "wait",
// never firing), and no condition may use the `custom` type — spec.md §9
// calls out the source's no-op custom-condition evaluator as a latent bug
// and directs this reimplementation to reject it at load instead of
// preserving the no-op.
func (c Config) failoverRules() ([]failover.FailoverRule, error) {
	rules := make([]failover.FailoverRule, 0, len(c.Failover.Rules))
	for _, r := range c.Failover.Rules {
		if len(r.Conditions) == 0 {
			return nil, ctlerrors.ConfigError(fmt.Sprintf("failover rule %q: at least one condition is required", r.ID))
		}
		if len(r.Actions) == 0 {
			return nil, ctlerrors.ConfigError(fmt.Sprintf("failover rule %q: at least one action is required", r.ID))
		}

		rule := failover.FailoverRule{
			ID:       r.ID,
			Enabled:  r.Enabled,
			Priority: r.Priority,
			Cooldown: msToDuration(r.CooldownMS),
		}
		for _, cnd := range r.Conditions {
			condType := failover.ConditionType(cnd.Type)
			if condType == failover.ConditionCustom {
				return nil, ctlerrors.ConfigError(fmt.Sprintf("failover rule %q: condition type %q is not yet implemented", r.ID, failover.ConditionCustom))
			}
			rule.Conditions = append(rule.Conditions, failover.Condition{
				Type:          condType,
				Target:        cnd.Target,
				Comparator:    failover.Comparator(cnd.Comparator),
				ExpectedValue: cnd.ExpectedValue,
				Duration:      msToDuration(cnd.DurationMS),
			})
		}
		for _, a := range r.Actions {
			rule.Actions = append(rule.Actions, failover.Action{
				Type:       failover.ActionType(a.Type),
				Target:     a.Target,
				Parameters: a.Parameters,
				Timeout:    msToDuration(a.TimeoutMS),
			})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (c Config) failoverEngineConfig() (failoverengine.Config, error) {
	rules, err := c.failoverRules()
	if err != nil {
		return failoverengine.Config{}, err
	}
	def := failoverengine.DefaultConfig()
	cfg := failoverengine.Config{
		Rules:            rules,
		EvaluateInterval: msToDuration(c.Failover.EvaluateIntervalMS),
		HistorySize:      def.HistorySize,
	}
	if cfg.EvaluateInterval <= 0 {
		cfg.EvaluateInterval = def.EvaluateInterval
	}
	return cfg, nil
}

func (c Config) recoveryComponents() []recovery.RecoveryComponent {
	components := make([]recovery.RecoveryComponent, 0, len(c.Recovery.Components))
	for _, rc := range c.Recovery.Components {
		comp := recovery.RecoveryComponent{
			Name:         rc.Name,
			Priority:     rc.Priority,
			Dependencies: rc.Dependencies,
		}
		for _, s := range rc.RecoverySteps {
			comp.RecoverySteps = append(comp.RecoverySteps, recoveryStep(s))
		}
		for _, s := range rc.RollbackSteps {
			comp.RollbackSteps = append(comp.RollbackSteps, recoveryStep(s))
		}
		for _, v := range rc.ValidationSteps {
			comp.ValidationSteps = append(comp.ValidationSteps, recovery.ValidationStep{
				ID:     v.ID,
				Type:   recovery.ValidationType(v.Type),
				Target: v.Target,
				Criteria: recovery.ValidationCriteria{
					ExpectedValue: v.Expected,
					Threshold:     v.Threshold,
				},
				Timeout: msToDuration(v.TimeoutMS),
			})
		}
		components = append(components, comp)
	}
	return components
}

func recoveryStep(s RecoveryStepConfig) recovery.RecoveryStep {
	return recovery.RecoveryStep{
		ID:            s.ID,
		Description:   s.Description,
		Command:       s.Command,
		Timeout:       msToDuration(s.TimeoutMS),
		Critical:      s.Critical,
		Retryable:     s.Retryable,
		RetryAttempts: s.RetryAttempts,
		RetryDelay:    msToDuration(s.RetryDelayMS),
		Environment:   s.Environment,
	}
}

func (c Config) recoveryEngineConfig() recoveryengine.Config {
	def := recoveryengine.DefaultConfig()
	cfg := recoveryengine.Config{
		Components:          c.recoveryComponents(),
		MaxRecoveryTime:     secToDuration(c.Recovery.MaxRecoveryTimeS),
		ValidationTimeout:   secToDuration(c.Recovery.ValidationTimeoutS),
		HistorySize:         def.HistorySize,
		TradingChecks:       c.Recovery.Validation.TradingChecks,
		PerfThresholds:      c.Recovery.Validation.PerfThresholds,
		DataIntegrityChecks: c.Recovery.Validation.DataIntegrityChecks,
	}
	if cfg.MaxRecoveryTime <= 0 {
		cfg.MaxRecoveryTime = def.MaxRecoveryTime
	}
	if cfg.ValidationTimeout <= 0 {
		cfg.ValidationTimeout = def.ValidationTimeout
	}
	return cfg
}
