// Package alertengine implements the threshold evaluation and notification
// fan-out component (component C): a gate chain of predicate, duration,
// cooldown, and rate limit runs against every snapshot for every enabled
// rule, driving a per-rule IDLE/PENDING/FIRING state machine.
package alertengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/domain/telemetry"
	"github.com/R3E-Network/service_layer/domain/trigger"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

// maxDispatchLog bounds the in-memory audit trail Dispatches() returns; it
// is a rolling window, not a durable record.
const maxDispatchLog = 200

// Channel dispatches one alert to a notification sink. Each channel
// implementation (console, email, webhook, chat) lives under the sibling
// channel package and fails independently of the others.
type Channel interface {
	Name() alerting.Channel
	Send(ctx context.Context, alert alerting.Alert) error
}

// Config configures rule evaluation and the engine's own housekeeping.
type Config struct {
	Enabled           bool
	Rules             []alerting.ThresholdRule
	MaxAlertsPerHour  int
	AlertRetentionDays int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxAlertsPerHour:   50,
		AlertRetentionDays: 30,
	}
}

// Engine is the Alert Engine. It is a sampler.Subscriber: OnSnapshot drives
// one evaluation pass across every enabled rule.
type Engine struct {
	cfg      Config
	channels map[alerting.Channel]Channel
	log      *logging.Logger

	mu         sync.Mutex
	states     map[string]*alerting.ThresholdState
	alerts     map[string]*alerting.Alert
	statsBySev map[alerting.Severity]int
	statsByCat map[string]int
	dispatches []trigger.Dispatch
}

// New constructs an Engine. channels maps every configured, enabled channel
// to its dispatcher; an alert targeting an unconfigured channel is skipped
// for that channel.
func New(cfg Config, channels map[alerting.Channel]Channel, log *logging.Logger) *Engine {
	states := make(map[string]*alerting.ThresholdState, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		states[rule.Name] = &alerting.ThresholdState{RuleName: rule.Name, State: alerting.StateIdle}
	}
	return &Engine{
		cfg:        cfg,
		channels:   channels,
		log:        log,
		states:     states,
		alerts:     make(map[string]*alerting.Alert),
		statsBySev: make(map[alerting.Severity]int),
		statsByCat: make(map[string]int),
	}
}

func (e *Engine) Name() string { return "alertengine" }

func (e *Engine) Start(ctx context.Context) error { return nil }

func (e *Engine) Stop(ctx context.Context) error { return nil }

func (e *Engine) Ready(ctx context.Context) error { return nil }

// OnSnapshot implements sampler.Subscriber. It evaluates every enabled rule
// against the snapshot in the order rules were configured. Per spec.md
// §5's ordering guarantee, a single rule's ThresholdState is only ever
// mutated from this call (the Sampler never runs two ticks concurrently),
// so a global mutex is sufficient rather than per-rule locking.
func (e *Engine) OnSnapshot(snapshot telemetry.MetricSnapshot) {
	if !e.cfg.Enabled {
		return
	}
	now := snapshot.Timestamp()
	for _, rule := range e.cfg.Rules {
		if !rule.Enabled {
			continue
		}
		e.evaluateRule(rule, snapshot, now)
	}
}

func (e *Engine) evaluateRule(rule alerting.ThresholdRule, snapshot telemetry.MetricSnapshot, now time.Time) {
	triggered, err := Evaluate(rule, snapshot)
	if err != nil {
		e.log.WithError(err).Warn("alertengine: predicate evaluation failed, treating as false for rule " + rule.Name)
		triggered = false
	}

	e.mu.Lock()
	state, ok := e.states[rule.Name]
	if !ok {
		state = &alerting.ThresholdState{RuleName: rule.Name, State: alerting.StateIdle}
		e.states[rule.Name] = state
	}

	if !triggered {
		state.State = alerting.StateIdle
		state.ConsecutiveCount = 0
		e.mu.Unlock()
		return
	}

	switch state.State {
	case alerting.StateIdle:
		state.State = alerting.StatePending
		state.FirstTriggeredAt = now
		state.ConsecutiveCount = 1
	case alerting.StatePending, alerting.StateFiring:
		state.ConsecutiveCount++
	}

	switch state.State {
	case alerting.StatePending:
		if now.Sub(state.FirstTriggeredAt) >= rule.Duration && e.canFire(rule, state, now) {
			alert := e.buildAlert(rule, snapshot, now)
			state.State = alerting.StateFiring
			state.LastAlertAt = now
			e.recordHourBucket(state, now)
			e.mu.Unlock()
			e.dispatch(alert)
			return
		}
	case alerting.StateFiring:
		if now.Sub(state.LastAlertAt) >= rule.Cooldown && e.canFire(rule, state, now) {
			alert := e.buildAlert(rule, snapshot, now)
			state.LastAlertAt = now
			e.recordHourBucket(state, now)
			e.mu.Unlock()
			e.dispatch(alert)
			return
		}
	}
	e.mu.Unlock()
}

// canFire applies the rate-limit gate. Caller holds e.mu.
func (e *Engine) canFire(rule alerting.ThresholdRule, state *alerting.ThresholdState, now time.Time) bool {
	limit := rule.MaxAlertsPerHour
	if limit <= 0 {
		limit = e.cfg.MaxAlertsPerHour
	}
	if limit <= 0 {
		return true
	}

	if state.HourBucketStart.IsZero() || now.Sub(state.HourBucketStart) >= time.Hour {
		state.HourBucketStart = now
		state.HourBucketCount = 0
	}
	return state.HourBucketCount < limit
}

// recordHourBucket increments the rate-limit counter. Caller holds e.mu.
func (e *Engine) recordHourBucket(state *alerting.ThresholdState, now time.Time) {
	if state.HourBucketStart.IsZero() || now.Sub(state.HourBucketStart) >= time.Hour {
		state.HourBucketStart = now
		state.HourBucketCount = 0
	}
	state.HourBucketCount++
}

func (e *Engine) buildAlert(rule alerting.ThresholdRule, snapshot telemetry.MetricSnapshot, now time.Time) alerting.Alert {
	alert := alerting.Alert{
		ID:        fmt.Sprintf("%s-%d", rule.Name, now.UnixNano()),
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Category:  rule.Category,
		Title:     fmt.Sprintf("%s: %s %s %.2f", rule.Name, rule.Field, rule.Comparator, rule.Threshold),
		Message:   rule.Expression,
		Channels:  rule.Channels,
		CreatedAt: now,
	}
	if payload, err := PayloadSubset(snapshot, rule.Field); err == nil {
		alert.Payload = payload
	}

	e.alerts[alert.ID] = &alert
	e.statsBySev[alert.Severity]++
	e.statsByCat[alert.Category]++
	return alert
}

// dispatch fans an alert out to every targeted, configured channel
// concurrently. Per spec.md §4.C the engine never waits for individual
// channel success before evaluating the next rule, so each dispatch runs
// in its own goroutine and failures are only logged.
func (e *Engine) dispatch(alert alerting.Alert) {
	for _, chName := range alert.Channels {
		ch, ok := e.channels[chName]
		if !ok {
			continue
		}
		go func(ch Channel) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := ch.Send(ctx, alert)
			record := trigger.Dispatch{
				AlertID:   alert.ID,
				RuleName:  alert.RuleName,
				Kind:      trigger.Kind(ch.Name()),
				Target:    string(ch.Name()),
				Succeeded: err == nil,
				SentAt:    time.Now().UTC(),
			}
			if err != nil {
				record.Error = err.Error()
				e.log.WithError(err).Error(fmt.Sprintf("alertengine: dispatch to channel %s failed for alert %s", ch.Name(), alert.ID))
			}
			e.recordDispatch(record)
		}(ch)
	}
}

// recordDispatch appends to the bounded dispatch audit trail, trimming the
// oldest entry once maxDispatchLog is reached.
func (e *Engine) recordDispatch(d trigger.Dispatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatches = append(e.dispatches, d)
	if len(e.dispatches) > maxDispatchLog {
		e.dispatches = e.dispatches[len(e.dispatches)-maxDispatchLog:]
	}
}

// Dispatches returns a snapshot of the most recent channel dispatch
// attempts, for the Orchestrator's status output and audit tooling.
func (e *Engine) Dispatches() []trigger.Dispatch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]trigger.Dispatch(nil), e.dispatches...)
}

// Acknowledge marks an alert acknowledged. Idempotent: re-acknowledging an
// already-acknowledged alert returns nil.
func (e *Engine) Acknowledge(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.alerts[id]
	if !ok {
		return ctlerrors.UnknownAlert(id)
	}
	alert.Acknowledged = true
	return nil
}

// Resolve closes out an alert. Idempotent.
func (e *Engine) Resolve(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.alerts[id]
	if !ok {
		return ctlerrors.UnknownAlert(id)
	}
	if alert.ResolvedAt == nil {
		now := time.Now().UTC()
		alert.ResolvedAt = &now
	}
	return nil
}

// CreateManual raises an operator-initiated alert outside the rule engine.
func (e *Engine) CreateManual(severity alerting.Severity, category, title, message string, channels []alerting.Channel) alerting.Alert {
	alert := alerting.Alert{
		ID:        uuid.NewString(),
		RuleName:  "manual",
		Severity:  severity,
		Category:  category,
		Title:     title,
		Message:   message,
		Channels:  channels,
		CreatedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	e.alerts[alert.ID] = &alert
	e.statsBySev[alert.Severity]++
	e.statsByCat[alert.Category]++
	e.mu.Unlock()

	e.dispatch(alert)
	return alert
}

// TestChannels sends a synthetic info-severity alert through every
// configured channel and reports per-channel success, run concurrently and
// joined before returning.
func (e *Engine) TestChannels(ctx context.Context) map[alerting.Channel]bool {
	probe := alerting.Alert{
		ID:        "test-" + uuid.NewString(),
		RuleName:  "test_channels",
		Severity:  alerting.SeverityInfo,
		Category:  "self_test",
		Title:     "channel self-test",
		Message:   "synthetic alert from test_channels",
		CreatedAt: time.Now().UTC(),
	}

	results := make(map[alerting.Channel]bool, len(e.channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, ch := range e.channels {
		wg.Add(1)
		go func(name alerting.Channel, ch Channel) {
			defer wg.Done()
			err := ch.Send(ctx, probe)
			mu.Lock()
			results[name] = err == nil
			mu.Unlock()
		}(name, ch)
	}
	wg.Wait()
	return results
}

// Stats returns aggregate counters by severity and category.
func (e *Engine) Stats() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	bySev := make(map[string]int, len(e.statsBySev))
	for k, v := range e.statsBySev {
		bySev[string(k)] = v
	}
	byCat := make(map[string]int, len(e.statsByCat))
	for k, v := range e.statsByCat {
		byCat[k] = v
	}
	return map[string]any{
		"total_alerts":  len(e.alerts),
		"by_severity":   bySev,
		"by_category":   byCat,
	}
}

// Cleanup evicts alerts older than the configured retention horizon.
// Resolved and unresolved alerts are both subject to eviction once their
// age exceeds the horizon.
func (e *Engine) Cleanup() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	days := e.cfg.AlertRetentionDays
	if days <= 0 {
		days = 30
	}
	horizon := time.Now().UTC().AddDate(0, 0, -days)

	evicted := 0
	for id, alert := range e.alerts {
		if alert.CreatedAt.Before(horizon) {
			delete(e.alerts, id)
			evicted++
		}
	}
	return evicted
}
