// Package sampler implements the periodic metric-snapshot producer
// (component A): on each tick it assembles a MetricSnapshot from host
// counters (via gopsutil) and an injected DomainSource, and publishes it to
// subscribers (the Retention Store and the Alert Engine).
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/R3E-Network/service_layer/domain/automation"
	"github.com/R3E-Network/service_layer/domain/telemetry"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

// DomainSource supplies the current domain metric block synchronously. It
// may return stale or zero-valued metrics alongside a non-nil error; the
// Sampler treats that as a partial failure, not a fatal one.
type DomainSource interface {
	DomainMetrics(ctx context.Context) (telemetry.DomainMetrics, error)
}

// Subscriber receives every snapshot the Sampler produces.
type Subscriber interface {
	OnSnapshot(snapshot telemetry.MetricSnapshot)
}

// Config configures the Sampler's tick interval and which blocks to collect.
type Config struct {
	Interval          time.Duration
	EnableHostMetrics bool
	EnableDomainMetrics bool
	DiskPath          string
}

// DefaultConfig returns the spec-mandated defaults (30 s tick, both blocks
// enabled).
func DefaultConfig() Config {
	return Config{
		Interval:            30 * time.Second,
		EnableHostMetrics:   true,
		EnableDomainMetrics: true,
		DiskPath:            "/",
	}
}

// Sampler is the periodic snapshot producer. Start begins ticking;
// concurrent ticks never overlap. Stop halts ticking within one tick
// period, letting any in-flight sample complete.
type Sampler struct {
	cfg    Config
	source DomainSource
	log    *logging.Logger

	mu          sync.Mutex
	subscribers []Subscriber
	started     bool

	cronID  cron.EntryID
	cron    *cron.Cron
	lastNet gnet.IOCountersStat
	haveNet bool

	runCount int
	lastRun  time.Time
	nextRun  time.Time
}

// New constructs a Sampler. source may be nil if EnableDomainMetrics is
// false.
func New(cfg Config, source DomainSource, log *logging.Logger) *Sampler {
	return &Sampler{cfg: cfg, source: source, log: log}
}

// Subscribe registers a subscriber to receive future snapshots. Must be
// called before Start.
func (s *Sampler) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Name implements the orchestrator's Service contract.
func (s *Sampler) Name() string { return "sampler" }

// Start begins ticking on cfg.Interval via a cron scheduler using the
// `@every <dur>` spec, matching this codebase's standard periodic-task
// idiom. It fails if already started.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ctlerrors.AlreadyStarted(s.Name())
	}
	if s.cfg.Interval <= 0 {
		s.mu.Unlock()
		return ctlerrors.InvalidInterval("sampler.interval", s.cfg.Interval)
	}
	s.started = true
	s.mu.Unlock()

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := "@every " + s.cfg.Interval.String()
	id, err := c.AddFunc(spec, func() { s.tick(ctx) })
	if err != nil {
		return ctlerrors.ConfigError("invalid sampler schedule: " + err.Error())
	}
	s.cron = c
	s.cronID = id
	c.Start()
	return nil
}

// Stop halts ticking. In-flight ticks complete; cron.Stop waits for the
// running job (if any) to return before its context is cancelled.
func (s *Sampler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	s.started = false
	return nil
}

// Ready implements LifecycleService; the Sampler is ready once started.
func (s *Sampler) Ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ctlerrors.New(ctlerrors.KindFatal, "sampler not started")
	}
	return nil
}

// Schedule reports the Sampler's periodic-task bookkeeping: how many
// snapshots it has taken and when the next is due.
func (s *Sampler) Schedule() automation.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := automation.StatusPaused
	if s.started {
		status = automation.StatusActive
	}
	return automation.Schedule{
		TaskName: s.Name(),
		Interval: s.cfg.Interval,
		Status:   status,
		RunCount: s.runCount,
		LastRun:  s.lastRun,
		NextRun:  s.nextRun,
	}
}

// tick assembles one snapshot and publishes it to subscribers. A failing
// sub-source never skips the tick: its block is zero-valued and the error
// is logged.
func (s *Sampler) tick(ctx context.Context) {
	snapshot := telemetry.MetricSnapshot{TimestampMS: time.Now().UTC().UnixMilli()}

	if s.cfg.EnableHostMetrics {
		host, err := s.collectHost(ctx)
		if err != nil {
			s.log.WithError(err).Warn("sampler: host metrics collection failed, using zero-valued block")
		}
		snapshot.Host = host
	}

	if s.cfg.EnableDomainMetrics && s.source != nil {
		domain, err := s.source.DomainMetrics(ctx)
		if err != nil {
			s.log.WithError(err).Warn("sampler: domain source failed, using zero-valued block")
		}
		snapshot.Domain = domain
	}

	s.mu.Lock()
	s.runCount++
	s.lastRun = time.Now().UTC()
	s.nextRun = s.lastRun.Add(s.cfg.Interval)
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.OnSnapshot(snapshot)
	}
}

// collectHost reads host counters via gopsutil and differences the network
// deltas against the previous tick.
func (s *Sampler) collectHost(ctx context.Context) (telemetry.HostMetrics, error) {
	var host telemetry.HostMetrics
	var firstErr error

	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		host.CPUPercent = percents[0]
	} else {
		record(err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		host.LoadAverage1 = avg.Load1
		host.LoadAverage5 = avg.Load5
		host.LoadAverage15 = avg.Load15
	} else {
		record(err)
	}

	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		host.CoreCount = count
	} else {
		record(err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		host.MemoryTotal = vm.Total
		host.MemoryUsed = vm.Used
		host.MemoryFree = vm.Free
	} else {
		record(err)
	}

	diskPath := s.cfg.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}
	if du, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		host.DiskTotal = du.Total
		host.DiskUsed = du.Used
		host.DiskFree = du.Free
	} else {
		record(err)
	}

	if counters, err := gnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		current := counters[0]
		s.mu.Lock()
		if s.haveNet {
			host.NetworkBytesIn = deltaUint64(current.BytesRecv, s.lastNet.BytesRecv)
			host.NetworkBytesOut = deltaUint64(current.BytesSent, s.lastNet.BytesSent)
		}
		s.lastNet = current
		s.haveNet = true
		s.mu.Unlock()
	} else {
		record(err)
	}

	return host, firstErr
}

// deltaUint64 returns the non-negative difference current-previous, or 0 if
// the counter appears to have reset (current < previous).
func deltaUint64(current, previous uint64) uint64 {
	if current < previous {
		return 0
	}
	return current - previous
}

// Stats returns a snapshot of run bookkeeping for the Orchestrator's status
// output, grounded on infrastructure/service's StatsCollector idiom.
func (s *Sampler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"run_count": s.runCount,
		"last_run":  s.lastRun,
		"next_run":  s.nextRun,
		"started":   s.started,
	}
}
