// Package metrics provides the Prometheus collectors the control plane's
// components expose. Exposition only: spec.md's Non-goals exclude defining
// the wire format an operator scrapes these with.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/service_layer/infrastructure/runtime"
)

// Metrics holds every Prometheus collector the control plane's components
// record against.
type Metrics struct {
	// Sampler (component A)
	SamplesTotal      prometheus.Counter
	SampleErrorsTotal *prometheus.CounterVec
	SegmentBytes      prometheus.Gauge

	// Alert Engine (component C)
	AlertsEmittedTotal    *prometheus.CounterVec
	AlertsSuppressedTotal *prometheus.CounterVec
	ChannelDispatchTotal  *prometheus.CounterVec

	// Validator (component D)
	ValidatorProbeDuration *prometheus.HistogramVec

	// Recovery/Failover Engine (component E)
	RecoveryExecutionsTotal *prometheus.CounterVec
	FailoverDecisionsTotal  *prometheus.CounterVec

	// Orchestrator
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samples_total",
			Help: "Total number of metric snapshots produced by the sampler.",
		}),
		SampleErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sample_errors_total",
				Help: "Total number of sampler sub-source collection failures.",
			},
			[]string{"source"},
		),
		SegmentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segment_bytes",
			Help: "Total on-disk bytes currently held by the retention store.",
		}),

		AlertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_emitted_total",
				Help: "Total number of alerts dispatched by the alert engine.",
			},
			[]string{"severity", "category"},
		),
		AlertsSuppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_suppressed_total",
				Help: "Total number of threshold triggers that did not result in a dispatched alert.",
			},
			[]string{"reason"},
		),
		ChannelDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_dispatch_total",
				Help: "Total number of per-channel alert dispatch attempts.",
			},
			[]string{"channel", "status"},
		),

		ValidatorProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validator_probe_duration_seconds",
				Help:    "Elapsed time of each validator probe.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"probe"},
		),

		RecoveryExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_executions_total",
				Help: "Total number of recovery engine executions by terminal status.",
			},
			[]string{"status"},
		),
		FailoverDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failover_decisions_total",
				Help: "Total number of failover rule evaluations that produced a non-wait decision.",
			},
			[]string{"decision"},
		),

		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_uptime_seconds",
			Help: "Orchestrator uptime in seconds.",
		}),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service build/environment information.",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.SamplesTotal,
			m.SampleErrorsTotal,
			m.SegmentBytes,
			m.AlertsEmittedTotal,
			m.AlertsSuppressedTotal,
			m.ChannelDispatchTotal,
			m.ValidatorProbeDuration,
			m.RecoveryExecutionsTotal,
			m.FailoverDecisionsTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordSample records one sampler tick, and any sub-source failure within it.
func (m *Metrics) RecordSample(failedSources ...string) {
	m.SamplesTotal.Inc()
	for _, source := range failedSources {
		m.SampleErrorsTotal.WithLabelValues(source).Inc()
	}
}

// SetSegmentBytes records the retention store's current total storage size.
func (m *Metrics) SetSegmentBytes(bytes int64) {
	m.SegmentBytes.Set(float64(bytes))
}

// RecordAlertEmitted records one dispatched alert.
func (m *Metrics) RecordAlertEmitted(severity, category string) {
	m.AlertsEmittedTotal.WithLabelValues(severity, category).Inc()
}

// RecordAlertSuppressed records one threshold trigger that did not fire,
// tagged with the gate that suppressed it (duration, cooldown, rate_limit).
func (m *Metrics) RecordAlertSuppressed(reason string) {
	m.AlertsSuppressedTotal.WithLabelValues(reason).Inc()
}

// RecordChannelDispatch records one channel send attempt's outcome.
func (m *Metrics) RecordChannelDispatch(channel, status string) {
	m.ChannelDispatchTotal.WithLabelValues(channel, status).Inc()
}

// RecordValidatorProbe records one probe's elapsed duration.
func (m *Metrics) RecordValidatorProbe(probe string, duration time.Duration) {
	m.ValidatorProbeDuration.WithLabelValues(probe).Observe(duration.Seconds())
}

// RecordRecoveryExecution records one recovery engine run's terminal status.
func (m *Metrics) RecordRecoveryExecution(status string) {
	m.RecoveryExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordFailoverDecision records one non-wait failover rule decision.
func (m *Metrics) RecordFailoverDecision(decision string) {
	m.FailoverDecisionsTotal.WithLabelValues(decision).Inc()
}

// UpdateUptime updates the orchestrator uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
