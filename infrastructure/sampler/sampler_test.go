package sampler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/domain/telemetry"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

type fakeSource struct {
	metrics telemetry.DomainMetrics
	err     error
}

func (f fakeSource) DomainMetrics(ctx context.Context) (telemetry.DomainMetrics, error) {
	return f.metrics, f.err
}

type collectingSubscriber struct {
	mu        sync.Mutex
	snapshots []telemetry.MetricSnapshot
}

func (c *collectingSubscriber) OnSnapshot(s telemetry.MetricSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, s)
}

func (c *collectingSubscriber) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

func newTestSampler(cfg Config, source DomainSource) *Sampler {
	return New(cfg, source, logging.New("sampler-test", "error", "text"))
}

func TestSampler_TickPublishesSnapshot(t *testing.T) {
	sub := &collectingSubscriber{}
	source := fakeSource{metrics: telemetry.DomainMetrics{EquityTotal: 1000}}

	s := newTestSampler(Config{Interval: time.Second, EnableHostMetrics: true, EnableDomainMetrics: true}, source)
	s.Subscribe(sub)

	s.tick(context.Background())

	if sub.count() != 1 {
		t.Fatalf("expected 1 snapshot, got %d", sub.count())
	}
	if sub.snapshots[0].Domain.EquityTotal != 1000 {
		t.Errorf("EquityTotal = %v, want 1000", sub.snapshots[0].Domain.EquityTotal)
	}
	if sub.snapshots[0].TimestampMS == 0 {
		t.Error("expected non-zero timestamp")
	}
}

func TestSampler_TickToleratesDomainSourceError(t *testing.T) {
	sub := &collectingSubscriber{}
	source := fakeSource{err: context.DeadlineExceeded}

	s := newTestSampler(Config{Interval: time.Second, EnableHostMetrics: false, EnableDomainMetrics: true}, source)
	s.Subscribe(sub)

	s.tick(context.Background())

	if sub.count() != 1 {
		t.Fatalf("expected the tick to still publish a snapshot, got %d", sub.count())
	}
	if sub.snapshots[0].Domain.EquityTotal != 0 {
		t.Errorf("expected zero-valued domain block on error, got %v", sub.snapshots[0].Domain)
	}
}

func TestSampler_StartTwiceFails(t *testing.T) {
	s := newTestSampler(DefaultConfig(), fakeSource{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected second Start() to fail")
	}
}

func TestSampler_RejectsNonPositiveInterval(t *testing.T) {
	s := newTestSampler(Config{Interval: 0}, fakeSource{})
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected non-positive interval to be rejected")
	}
}

func TestSampler_StatsTracksRunCount(t *testing.T) {
	s := newTestSampler(Config{Interval: time.Second}, fakeSource{})
	s.tick(context.Background())
	s.tick(context.Background())

	stats := s.Stats()
	if stats["run_count"] != 2 {
		t.Errorf("run_count = %v, want 2", stats["run_count"])
	}
}
