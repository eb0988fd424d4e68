package validator

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/domain/probe"
)

func TestValidator_Run_AllServicesHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "api", Protocol: probe.ProtocolHTTP, Target: srv.URL, Timeout: time.Second, Critical: true},
		},
		OverallTimeout: 5 * time.Second,
	}
	v := New(cfg)

	report := v.Run(context.Background(), false)
	if !report.Success {
		t.Fatalf("expected success, errors: %v", report.Errors)
	}
	if len(report.Services) != 1 || !report.Services[0].Success {
		t.Fatalf("expected 1 healthy service result, got %+v", report.Services)
	}
}

func TestValidator_Run_CriticalFailureFailsOverall(t *testing.T) {
	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "down", Protocol: probe.ProtocolTCP, Target: "127.0.0.1:1", Timeout: 200 * time.Millisecond, Critical: true},
		},
		OverallTimeout: 2 * time.Second,
	}
	v := New(cfg)

	report := v.Run(context.Background(), false)
	if report.Success {
		t.Error("expected overall failure when a critical probe fails")
	}
}

func TestValidator_Run_NonCriticalFailureDoesNotFailOverall(t *testing.T) {
	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "down", Protocol: probe.ProtocolTCP, Target: "127.0.0.1:1", Timeout: 200 * time.Millisecond, Critical: false},
		},
		OverallTimeout: 2 * time.Second,
	}
	v := New(cfg)

	report := v.Run(context.Background(), false)
	if !report.Success {
		t.Error("expected overall success when only a non-critical probe fails")
	}
}

func TestValidator_Run_ZeroTimeoutFailsImmediately(t *testing.T) {
	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "zero", Protocol: probe.ProtocolTCP, Target: "127.0.0.1:1", Timeout: 0, Critical: true},
		},
	}
	v := New(cfg)

	report := v.Run(context.Background(), false)
	if report.Services[0].Error != "timeout" {
		t.Errorf("expected immediate timeout error, got %q", report.Services[0].Error)
	}
}

func TestValidator_Run_TCPProbeSucceedsAgainstLiveListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "tcp", Protocol: probe.ProtocolTCP, Target: ln.Addr().String(), Timeout: time.Second, Critical: true},
		},
	}
	v := New(cfg)

	report := v.Run(context.Background(), false)
	if !report.Success {
		t.Fatalf("expected TCP probe success, errors: %v", report.Errors)
	}
}

func TestValidator_Run_QuickModeCapsTimeout(t *testing.T) {
	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "down", Protocol: probe.ProtocolTCP, Target: "127.0.0.1:1", Timeout: 10 * time.Second, Critical: false},
		},
	}
	v := New(cfg)

	start := time.Now()
	v.Run(context.Background(), true)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("expected quick mode to bound overall runtime near 2s, took %v", elapsed)
	}
}

func TestValidator_Run_UnknownProtocolFails(t *testing.T) {
	cfg := Config{
		Services: []probe.ServiceProbe{
			{Name: "weird", Protocol: probe.ServiceProtocol("ftp"), Target: "127.0.0.1:21", Timeout: time.Second, Critical: true},
		},
	}
	v := New(cfg)

	report := v.Run(context.Background(), false)
	if report.Success {
		t.Error("expected unsupported protocol to fail the probe")
	}
}
