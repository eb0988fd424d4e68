package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}
	if m.SamplesTotal == nil {
		t.Error("SamplesTotal should not be nil")
	}
	if m.AlertsEmittedTotal == nil {
		t.Error("AlertsEmittedTotal should not be nil")
	}
	if m.ValidatorProbeDuration == nil {
		t.Error("ValidatorProbeDuration should not be nil")
	}
}

func TestRecordSample(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordSample()
	m.RecordSample("host", "domain")
}

func TestSetSegmentBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetSegmentBytes(1024)
	m.SetSegmentBytes(0)
}

func TestRecordAlertEmittedAndSuppressed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordAlertEmitted("critical", "host")
	m.RecordAlertSuppressed("cooldown")
	m.RecordAlertSuppressed("rate_limit")
}

func TestRecordChannelDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordChannelDispatch("webhook", "success")
	m.RecordChannelDispatch("webhook", "failure")
}

func TestRecordValidatorProbe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordValidatorProbe("http:api", 50*time.Millisecond)
}

func TestRecordRecoveryAndFailover(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordRecoveryExecution("completed")
	m.RecordFailoverDecision("failover")
}

func TestUpdateUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)
	startTime := time.Now().Add(-1 * time.Hour)

	m.UpdateUptime(startTime)
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}
