// Package controlplane wires the Sampler, Retention Store, Alert Engine,
// Validator, Recovery Engine, and Failover Engine into one orchestrated
// process, matching spec.md §2's system overview and exposing the CLI
// surface spec.md §6 describes.
package controlplane

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SamplerConfig mirrors spec.md §6's `sampler` block.
type SamplerConfig struct {
	IntervalMS        int64 `yaml:"interval_ms" env:"CONTROLPLANE_SAMPLER_INTERVAL_MS"`
	EnableHostMetrics bool  `yaml:"enable_host_metrics" env:"CONTROLPLANE_SAMPLER_ENABLE_HOST_METRICS"`
	EnableDomainMetrics bool `yaml:"enable_domain_metrics" env:"CONTROLPLANE_SAMPLER_ENABLE_DOMAIN_METRICS"`
}

// RetentionConfig mirrors spec.md §6's `retention` block.
type RetentionConfig struct {
	StorageDir         string `yaml:"storage_dir" env:"CONTROLPLANE_RETENTION_STORAGE_DIR"`
	RetentionDays      int    `yaml:"retention_days" env:"CONTROLPLANE_RETENTION_DAYS"`
	CompressAfterDays  int    `yaml:"compress_after_days" env:"CONTROLPLANE_RETENTION_COMPRESS_AFTER_DAYS"`
	CleanupIntervalMS  int64  `yaml:"cleanup_interval_ms" env:"CONTROLPLANE_RETENTION_CLEANUP_INTERVAL_MS"`
	CompressIntervalMS int64  `yaml:"compress_interval_ms" env:"CONTROLPLANE_RETENTION_COMPRESS_INTERVAL_MS"`
	MaxBytes           int64  `yaml:"max_bytes" env:"CONTROLPLANE_RETENTION_MAX_BYTES"`
}

// SMTPConfig is the email channel's transport.
type SMTPConfig struct {
	Host string `yaml:"host" env:"CONTROLPLANE_EMAIL_SMTP_HOST"`
	Port int    `yaml:"port" env:"CONTROLPLANE_EMAIL_SMTP_PORT"`
	TLS  bool   `yaml:"tls" env:"CONTROLPLANE_EMAIL_SMTP_TLS"`
	User string `yaml:"user" env:"CONTROLPLANE_EMAIL_SMTP_USER"`
	Pass string `yaml:"pass" env:"CONTROLPLANE_EMAIL_SMTP_PASS"`
}

// ChannelsConfig mirrors spec.md §6's `alerts.channels` block.
type ChannelsConfig struct {
	Console struct {
		Enabled bool `yaml:"enabled" env:"CONTROLPLANE_CHANNEL_CONSOLE_ENABLED"`
		Colors  bool `yaml:"colors" env:"CONTROLPLANE_CHANNEL_CONSOLE_COLORS"`
	} `yaml:"console"`
	Email struct {
		Enabled bool       `yaml:"enabled" env:"CONTROLPLANE_CHANNEL_EMAIL_ENABLED"`
		SMTP    SMTPConfig `yaml:"smtp"`
		From    string     `yaml:"from" env:"CONTROLPLANE_CHANNEL_EMAIL_FROM"`
		To      []string   `yaml:"to"`
		Subject string     `yaml:"subject" env:"CONTROLPLANE_CHANNEL_EMAIL_SUBJECT"`
	} `yaml:"email"`
	Webhook struct {
		Enabled      bool              `yaml:"enabled" env:"CONTROLPLANE_CHANNEL_WEBHOOK_ENABLED"`
		URL          string            `yaml:"url" env:"CONTROLPLANE_CHANNEL_WEBHOOK_URL"`
		Method       string            `yaml:"method" env:"CONTROLPLANE_CHANNEL_WEBHOOK_METHOD"`
		Headers      map[string]string `yaml:"headers"`
		TimeoutMS    int               `yaml:"timeout_ms" env:"CONTROLPLANE_CHANNEL_WEBHOOK_TIMEOUT_MS"`
		Retries      int               `yaml:"retries" env:"CONTROLPLANE_CHANNEL_WEBHOOK_RETRIES"`
		MaxPerSecond float64           `yaml:"max_per_second" env:"CONTROLPLANE_CHANNEL_WEBHOOK_MAX_PER_SECOND"`
	} `yaml:"webhook"`
	Chat struct {
		Enabled    bool   `yaml:"enabled" env:"CONTROLPLANE_CHANNEL_CHAT_ENABLED"`
		WebhookURL string `yaml:"webhook_url" env:"CONTROLPLANE_CHANNEL_CHAT_WEBHOOK_URL"`
		Channel    string `yaml:"channel" env:"CONTROLPLANE_CHANNEL_CHAT_CHANNEL"`
		Username   string `yaml:"username" env:"CONTROLPLANE_CHANNEL_CHAT_USERNAME"`
		Icon       string `yaml:"icon" env:"CONTROLPLANE_CHANNEL_CHAT_ICON"`
	} `yaml:"chat"`
}

// AlertsConfig mirrors spec.md §6's `alerts` block. Rules are loaded from
// the on-disk form only; there is no single env var shape sensible for a
// list of rules.
type AlertsConfig struct {
	Enabled           bool              `yaml:"enabled" env:"CONTROLPLANE_ALERTS_ENABLED"`
	Rules             []AlertRuleConfig `yaml:"rules"`
	Channels          ChannelsConfig    `yaml:"channels"`
	MaxAlertsPerHour  int               `yaml:"max_alerts_per_hour" env:"CONTROLPLANE_ALERTS_MAX_PER_HOUR"`
	AlertRetentionDays int              `yaml:"alert_retention_days" env:"CONTROLPLANE_ALERTS_RETENTION_DAYS"`
}

// AlertRuleConfig is the on-disk form of one domain/alerting.ThresholdRule.
type AlertRuleConfig struct {
	Name             string   `yaml:"name"`
	Category         string   `yaml:"category"`
	Severity         string   `yaml:"severity"`
	Field            string   `yaml:"field"`
	Comparator       string   `yaml:"comparator"`
	Threshold        float64  `yaml:"threshold"`
	Expression       string   `yaml:"expression"`
	DurationMS       int64    `yaml:"duration_ms"`
	CooldownMS       int64    `yaml:"cooldown_ms"`
	MaxAlertsPerHour int      `yaml:"max_alerts_per_hour"`
	Channels         []string `yaml:"channels"`
	Enabled          bool     `yaml:"enabled"`
}

// ServiceProbeConfig is the on-disk form of one domain/probe.ServiceProbe.
type ServiceProbeConfig struct {
	Name       string `yaml:"name"`
	Protocol   string `yaml:"protocol"`
	Target     string `yaml:"target"`
	TimeoutMS  int64  `yaml:"timeout_ms"`
	Critical   bool   `yaml:"critical"`
}

// StreamProbeConfig is the on-disk form of one domain/probe.StreamProbeSpec.
type StreamProbeConfig struct {
	Name              string `yaml:"name"`
	URL               string `yaml:"url"`
	TimeoutMS         int64  `yaml:"timeout_ms"`
	ProbeMessage      string `yaml:"probe_message"`
	ExpectedSubstring string `yaml:"expected_substring"`
}

// KVProbeConfig is the on-disk form of domain/probe.KVProbeSpec.
type KVProbeConfig struct {
	Host       string `yaml:"host" env:"CONTROLPLANE_VALIDATOR_KV_HOST"`
	Port       int    `yaml:"port" env:"CONTROLPLANE_VALIDATOR_KV_PORT"`
	Password   string `yaml:"password" env:"CONTROLPLANE_VALIDATOR_KV_PASSWORD"`
	TimeoutMS  int64  `yaml:"timeout_ms" env:"CONTROLPLANE_VALIDATOR_KV_TIMEOUT_MS"`
	TestPubSub bool   `yaml:"test_pubsub" env:"CONTROLPLANE_VALIDATOR_KV_TEST_PUBSUB"`
}

// ValidatorConfig mirrors spec.md §6's `validator` block.
type ValidatorConfig struct {
	Services         []ServiceProbeConfig `yaml:"services"`
	KV               *KVProbeConfig       `yaml:"kv"`
	Streams          []StreamProbeConfig  `yaml:"streams"`
	OverallTimeoutS  int                  `yaml:"overall_timeout_s" env:"CONTROLPLANE_VALIDATOR_OVERALL_TIMEOUT_S"`
}

// FailoverConditionConfig is the on-disk form of domain/failover.Condition.
type FailoverConditionConfig struct {
	Type          string `yaml:"type"`
	Target        string `yaml:"target"`
	Comparator    string `yaml:"comparator"`
	ExpectedValue string `yaml:"expected_value"`
	DurationMS    int64  `yaml:"duration_ms"`
}

// FailoverActionConfig is the on-disk form of domain/failover.Action.
type FailoverActionConfig struct {
	Type       string            `yaml:"type"`
	Target     string            `yaml:"target"`
	Parameters map[string]string `yaml:"parameters"`
	TimeoutMS  int64             `yaml:"timeout_ms"`
}

// FailoverRuleConfig is the on-disk form of domain/failover.FailoverRule.
type FailoverRuleConfig struct {
	ID         string                     `yaml:"id"`
	Enabled    bool                       `yaml:"enabled"`
	Conditions []FailoverConditionConfig  `yaml:"conditions"`
	Actions    []FailoverActionConfig     `yaml:"actions"`
	Priority   int                        `yaml:"priority"`
	CooldownMS int64                      `yaml:"cooldown_ms"`
}

// FailoverConfig mirrors spec.md §6's `failover` block.
type FailoverConfig struct {
	Rules              []FailoverRuleConfig `yaml:"rules"`
	EvaluateIntervalMS int64                `yaml:"evaluate_interval_ms" env:"CONTROLPLANE_FAILOVER_EVALUATE_INTERVAL_MS"`
}

// RecoveryStepConfig is the on-disk form of domain/recovery.RecoveryStep.
type RecoveryStepConfig struct {
	ID            string            `yaml:"id"`
	Description   string            `yaml:"description"`
	Command       []string          `yaml:"command"`
	TimeoutMS     int64             `yaml:"timeout_ms"`
	Critical      bool              `yaml:"critical"`
	Retryable     bool              `yaml:"retryable"`
	RetryAttempts int               `yaml:"retry_attempts"`
	RetryDelayMS  int64             `yaml:"retry_delay_ms"`
	Environment   map[string]string `yaml:"environment"`
}

// RecoveryValidationConfig is the on-disk form of domain/recovery.ValidationStep.
type RecoveryValidationConfig struct {
	ID        string  `yaml:"id"`
	Type      string  `yaml:"type"`
	Target    string  `yaml:"target"`
	Expected  string  `yaml:"expected_value"`
	Threshold float64 `yaml:"threshold"`
	TimeoutMS int64   `yaml:"timeout_ms"`
}

// RecoveryComponentConfig is the on-disk form of domain/recovery.RecoveryComponent.
type RecoveryComponentConfig struct {
	Name            string                     `yaml:"name"`
	Priority        int                        `yaml:"priority"`
	Dependencies    []string                   `yaml:"dependencies"`
	RecoverySteps   []RecoveryStepConfig       `yaml:"recovery_steps"`
	ValidationSteps []RecoveryValidationConfig `yaml:"validation_steps"`
	RollbackSteps   []RecoveryStepConfig       `yaml:"rollback_steps"`
}

// RecoverySystemValidationConfig mirrors spec.md §6's `recovery.validation`
// block: whole-system integrity checks run once every component has
// individually recovered, in addition to each RecoveryComponentConfig's own
// ValidationSteps. The `notifications` sub-block spec.md names is folded
// into the shared alert channels rather than kept as a second, parallel
// configuration surface.
type RecoverySystemValidationConfig struct {
	TradingChecks       []string           `yaml:"trading_checks"`
	PerfThresholds      map[string]float64 `yaml:"perf_thresholds"`
	DataIntegrityChecks []string           `yaml:"data_integrity_checks"`
}

// RecoveryConfig mirrors spec.md §6's `recovery` block.
type RecoveryConfig struct {
	Components         []RecoveryComponentConfig     `yaml:"components"`
	MaxRecoveryTimeS   int                            `yaml:"max_recovery_time_s" env:"CONTROLPLANE_RECOVERY_MAX_TIME_S"`
	ValidationTimeoutS int                            `yaml:"validation_timeout_s" env:"CONTROLPLANE_RECOVERY_VALIDATION_TIMEOUT_S"`
	Validation         RecoverySystemValidationConfig `yaml:"validation"`
}

// LoggingConfig controls the ambient logger every component shares.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CONTROLPLANE_LOG_LEVEL"`
	Format string `yaml:"format" env:"CONTROLPLANE_LOG_FORMAT"`
}

// Config is the top-level configuration surface spec.md §6 describes.
type Config struct {
	ServiceName           string          `yaml:"service_name" env:"CONTROLPLANE_SERVICE_NAME"`
	ComponentsConfigPath  string          `yaml:"components_config_path" env:"CONTROLPLANE_COMPONENTS_CONFIG_PATH"`
	Sampler               SamplerConfig   `yaml:"sampler"`
	Retention             RetentionConfig `yaml:"retention"`
	Alerts                AlertsConfig    `yaml:"alerts"`
	Validator             ValidatorConfig `yaml:"validator"`
	Failover              FailoverConfig  `yaml:"failover"`
	Recovery              RecoveryConfig  `yaml:"recovery"`
	Logging               LoggingConfig   `yaml:"logging"`
}

// Default returns a Config populated with every spec-mandated default.
func Default() Config {
	return Config{
		ServiceName: "controlplane",
		Sampler: SamplerConfig{
			IntervalMS:          30_000,
			EnableHostMetrics:   true,
			EnableDomainMetrics: true,
		},
		Retention: RetentionConfig{
			StorageDir:         "./data/metrics",
			RetentionDays:      30,
			CompressAfterDays:  7,
			CleanupIntervalMS:  86_400_000,
			CompressIntervalMS: 21_600_000,
			MaxBytes:           0,
		},
		Alerts: AlertsConfig{
			Enabled:            true,
			MaxAlertsPerHour:   50,
			AlertRetentionDays: 30,
		},
		Validator: ValidatorConfig{
			OverallTimeoutS: 30,
		},
		Failover: FailoverConfig{
			EvaluateIntervalMS: 5_000,
		},
		Recovery: RecoveryConfig{
			MaxRecoveryTimeS:   900,
			ValidationTimeoutS: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig resolves the precedence chain documented for this codebase's
// configuration surface: a YAML file's values overlay the defaults, a local
// .env file (best-effort, missing is not an error) is loaded into the
// process environment, and env vars tagged on the struct overlay the file
// values last. CLI flags, applied by the caller after LoadConfig returns,
// have the final word.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if trimmed := strings.TrimSpace(path); trimmed != "" {
		data, err := os.ReadFile(trimmed)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", trimmed, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", trimmed, err)
		}
	}

	_ = godotenv.Load()

	if err := envdecode.Decode(&cfg); err != nil {
		if !strings.Contains(err.Error(), "no target fields") && !strings.Contains(err.Error(), "none of the target fields were set") {
			return Config{}, fmt.Errorf("decode env overlay: %w", err)
		}
	}

	return cfg, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func secToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
