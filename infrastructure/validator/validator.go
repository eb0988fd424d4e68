// Package validator implements the on-demand, concurrent environment
// readiness checker (component D): HTTP/TCP service probes, a single KV
// probe with an optional pub/sub round-trip, and streaming endpoint
// probes, all run concurrently under one overall deadline.
package validator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/service_layer/domain/probe"
	"github.com/R3E-Network/service_layer/infrastructure/cache"
	"github.com/R3E-Network/service_layer/infrastructure/ratelimit"
)

// quickResultTTL bounds how long a full probe's result may be reused by a
// subsequent quick run. A `status` command hitting the CLI in a tight loop
// shouldn't re-dial every target on every call.
const quickResultTTL = 5 * time.Second

// Config declares the full probe surface for one Validator run.
type Config struct {
	Services       []probe.ServiceProbe
	KV             *probe.KVProbeSpec
	Streams        []probe.StreamProbeSpec
	OverallTimeout time.Duration

	// MaxConcurrentProbes is the probe start rate: a token bucket lets at
	// most this many probes begin dialing at once and refills at this many
	// per second, independent of how many are declared; zero uses the
	// package default of 20. It does not cap how many probes are in flight.
	MaxConcurrentProbes float64
}

// DefaultConfig returns the spec-mandated default overall deadline.
func DefaultConfig() Config {
	return Config{OverallTimeout: 30 * time.Second, MaxConcurrentProbes: 20}
}

// Validator runs declared probes on demand. It holds no persistent
// connections between runs; Run is safe to call concurrently.
type Validator struct {
	cfg     Config
	limiter *ratelimit.RateLimiter
	results *cache.Cache
}

func New(cfg Config) *Validator {
	perSecond := cfg.MaxConcurrentProbes
	if perSecond <= 0 {
		perSecond = 20
	}
	limiter := ratelimit.New(ratelimit.RateLimitConfig{
		RequestsPerSecond: perSecond,
		Burst:             int(perSecond),
	})
	results := cache.NewCache(cache.CacheConfig{DefaultTTL: quickResultTTL, MaxSize: 256, CleanupInterval: time.Minute})
	return &Validator{cfg: cfg, limiter: limiter, results: results}
}

func (v *Validator) Name() string { return "validator" }

// Run executes every probe concurrently under the configured overall
// deadline (2 s per probe and no pub/sub round-trip when quick is true),
// joining all results into one Report. A probe's failure never affects
// another probe's outcome; the report's Success is the conjunction of all
// critical service probes, the KV probe (if configured), and all required
// stream probes.
func (v *Validator) Run(ctx context.Context, quick bool) probe.Report {
	start := time.Now().UTC()

	deadline := v.cfg.OverallTimeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	if quick {
		deadline = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	report := probe.Report{StartedAt: start, Quick: quick}
	success := true

	runService := func(spec probe.ServiceProbe) {
		defer wg.Done()
		key := "service:" + spec.Name
		result, cached := v.cachedResult(key, quick)
		if !cached {
			v.limiter.Wait(ctx)
			result = runServiceProbe(ctx, spec, quick)
			if !quick {
				v.results.Set(key, result, quickResultTTL)
			}
		}
		mu.Lock()
		report.Services = append(report.Services, result)
		if spec.Critical && !result.Success {
			success = false
		}
		mu.Unlock()
	}

	for _, spec := range v.cfg.Services {
		wg.Add(1)
		go runService(spec)
	}

	if v.cfg.KV != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, cached := v.cachedResult("kv", quick)
			if !cached {
				v.limiter.Wait(ctx)
				result = runKVProbe(ctx, *v.cfg.KV, quick)
				if !quick {
					v.results.Set("kv", result, quickResultTTL)
				}
			}
			mu.Lock()
			report.KV = &result
			if !result.Success {
				success = false
			}
			mu.Unlock()
		}()
	}

	for _, spec := range v.cfg.Streams {
		wg.Add(1)
		go func(spec probe.StreamProbeSpec) {
			defer wg.Done()
			key := "stream:" + spec.Name
			result, cached := v.cachedResult(key, quick)
			if !cached {
				v.limiter.Wait(ctx)
				result = runStreamProbe(ctx, spec)
				if !quick {
					v.results.Set(key, result, quickResultTTL)
				}
			}
			mu.Lock()
			report.Streams = append(report.Streams, result)
			if !result.Success {
				success = false
			}
			mu.Unlock()
		}(spec)
	}

	wg.Wait()

	mu.Lock()
	for _, r := range report.Services {
		if !r.Success && r.Error != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", r.Name, r.Error))
		}
	}
	if report.KV != nil && !report.KV.Success {
		report.Errors = append(report.Errors, fmt.Sprintf("kv: %s", report.KV.Error))
	}
	for _, r := range report.Streams {
		if !r.Success && r.Error != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", r.Name, r.Error))
		}
	}
	report.Success = success
	mu.Unlock()

	report.ElapsedMS = time.Since(start).Milliseconds()
	return report
}

// cachedResult returns a recent full-run result for key when quick is true
// and one is still within quickResultTTL; it never serves a cached result
// to a non-quick run, since a full run must always dial out fresh.
func (v *Validator) cachedResult(key string, quick bool) (probe.ProbeResult, bool) {
	if !quick {
		return probe.ProbeResult{}, false
	}
	cached, ok := v.results.Get(key)
	if !ok {
		return probe.ProbeResult{}, false
	}
	result, ok := cached.(probe.ProbeResult)
	return result, ok
}

func probeTimeout(configured time.Duration, quick bool) time.Duration {
	if quick {
		return 2 * time.Second
	}
	if configured <= 0 {
		return 5 * time.Second
	}
	return configured
}

// runServiceProbe dials an HTTP or TCP target under spec's own timeout.
// A zero timeout fails immediately with "timeout" per spec.md §8.
func runServiceProbe(ctx context.Context, spec probe.ServiceProbe, quick bool) probe.ProbeResult {
	start := time.Now()
	if spec.Timeout == 0 {
		return probe.ProbeResult{Name: spec.Name, Success: false, Error: "timeout", ElapsedMS: 0}
	}

	timeout := probeTimeout(spec.Timeout, quick)
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch spec.Protocol {
	case probe.ProtocolHTTP:
		err = probeHTTP(probeCtx, spec.Target)
	case probe.ProtocolTCP:
		err = probeTCP(probeCtx, spec.Target)
	default:
		err = fmt.Errorf("unsupported protocol %q", spec.Protocol)
	}

	result := probe.ProbeResult{Name: spec.Name, ElapsedMS: time.Since(start).Milliseconds()}
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

func probeHTTP(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func probeTCP(ctx context.Context, target string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return err
	}
	return conn.Close()
}

// runKVProbe connects, pings, and optionally performs a pub/sub round-trip
// against the configured KV store. Both connections used by the round-trip
// are released on every exit path.
func runKVProbe(ctx context.Context, spec probe.KVProbeSpec, quick bool) probe.ProbeResult {
	start := time.Now()
	timeout := probeTimeout(spec.Timeout, quick)
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", spec.Host, spec.Port),
		Password: spec.Password,
	}

	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(probeCtx).Err(); err != nil {
		return probe.ProbeResult{Name: "kv", Error: err.Error(), ElapsedMS: time.Since(start).Milliseconds()}
	}

	if spec.TestPubSub && !quick {
		if err := pubSubRoundTrip(probeCtx, client); err != nil {
			return probe.ProbeResult{Name: "kv", Error: err.Error(), ElapsedMS: time.Since(start).Milliseconds()}
		}
	}

	return probe.ProbeResult{Name: "kv", Success: true, ElapsedMS: time.Since(start).Milliseconds()}
}

// pubSubRoundTrip subscribes on a second connection, publishes a unique
// payload on the primary, and waits up to 500ms for delivery.
func pubSubRoundTrip(ctx context.Context, client *redis.Client) error {
	channelName := fmt.Sprintf("validator-probe-%d", time.Now().UnixNano())
	payload := fmt.Sprintf("ping-%d", time.Now().UnixNano())

	sub := client.Subscribe(ctx, channelName)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	msgs := sub.Channel()

	if err := client.Publish(ctx, channelName, payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	select {
	case msg := <-msgs:
		if msg.Payload != payload {
			return fmt.Errorf("pub/sub round-trip mismatch")
		}
		return nil
	case <-time.After(500 * time.Millisecond):
		return fmt.Errorf("pub/sub round-trip timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runStreamProbe opens a websocket connection, optionally sends a probe
// message, and waits for the first inbound frame (or a frame matching
// expectedSubstring if one is configured).
func runStreamProbe(ctx context.Context, spec probe.StreamProbeSpec) probe.ProbeResult {
	start := time.Now()
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(probeCtx, spec.URL, nil)
	if err != nil {
		return probe.ProbeResult{Name: spec.Name, Error: fmt.Sprintf("connect: %v", err), ElapsedMS: time.Since(start).Milliseconds()}
	}
	defer conn.Close()

	if spec.ProbeMessage != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(spec.ProbeMessage)); err != nil {
			return probe.ProbeResult{Name: spec.Name, Error: fmt.Sprintf("send probe message: %v", err), ElapsedMS: time.Since(start).Milliseconds()}
		}
	}

	deadline, ok := probeCtx.Deadline()
	if ok {
		conn.SetReadDeadline(deadline)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return probe.ProbeResult{Name: spec.Name, Error: fmt.Sprintf("read: %v", err), ElapsedMS: time.Since(start).Milliseconds()}
		}
		if spec.ExpectedSubstring == "" || strings.Contains(string(data), spec.ExpectedSubstring) {
			return probe.ProbeResult{Name: spec.Name, Success: true, ElapsedMS: time.Since(start).Milliseconds()}
		}
		select {
		case <-probeCtx.Done():
			return probe.ProbeResult{Name: spec.Name, Error: "timeout waiting for expected frame", ElapsedMS: time.Since(start).Milliseconds()}
		default:
		}
	}
}
