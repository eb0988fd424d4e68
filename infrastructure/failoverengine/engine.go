// Package failoverengine implements periodic and on-event rule evaluation
// against component health, confidence-scored decisions, and ordered
// action execution (the failover half of component E).
package failoverengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/domain/automation"
	"github.com/R3E-Network/service_layer/domain/failover"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/recoveryengine"
	"github.com/R3E-Network/service_layer/infrastructure/standby"
)

// Notifier is the subset of the Alert Engine the notify action invokes.
// Accepting the narrow interface instead of *alertengine.Engine keeps this
// package free to be tested with a double.
type Notifier interface {
	CreateManual(severity alerting.Severity, category, title, message string, channels []alerting.Channel) alerting.Alert
}

// ConfigMutator applies an update-config action. The in-process default
// stores values in memory; a real deployment would back this with its
// actual configuration store.
type ConfigMutator interface {
	UpdateConfig(path, value string) error
}

// InProcessConfigMutator is a reference ConfigMutator backed by a mutex-
// guarded map, grounded on the same pattern as standby.InProcessManager.
type InProcessConfigMutator struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInProcessConfigMutator returns an empty in-process ConfigMutator.
func NewInProcessConfigMutator() *InProcessConfigMutator {
	return &InProcessConfigMutator{values: make(map[string]string)}
}

// UpdateConfig implements ConfigMutator.
func (m *InProcessConfigMutator) UpdateConfig(path, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[path] = value
	return nil
}

// Get returns the last value written to path.
func (m *InProcessConfigMutator) Get(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[path]
	return v, ok
}

// Config configures the Failover Engine's rule set and evaluation cadence.
type Config struct {
	Rules            []failover.FailoverRule
	EvaluateInterval time.Duration
	HistorySize      int
}

// DefaultConfig returns the spec-mandated defaults (5 second evaluation
// cadence).
func DefaultConfig() Config {
	return Config{
		EvaluateInterval: 5 * time.Second,
		HistorySize:      100,
	}
}

// Engine periodically (and on-demand) evaluates failover rules against
// component health and executes their actions when confidence crosses the
// decision thresholds.
type Engine struct {
	cfg     Config
	standby standby.Manager
	notify  Notifier
	config  ConfigMutator
	log     *logging.Logger

	cron   *cron.Cron
	cronID cron.EntryID

	mu         sync.Mutex
	started    bool
	windows    map[string][]*window // rule ID -> per-condition trailing window
	lastFired  map[string]time.Time
	history    *lru.Cache[string, *failover.Execution]

	evalCount int
	lastEval  time.Time
	nextEval  time.Time
}

// New constructs a Failover Engine.
func New(cfg Config, sm standby.Manager, notify Notifier, config ConfigMutator, log *logging.Logger) (*Engine, error) {
	size := cfg.HistorySize
	if size <= 0 {
		size = 100
	}
	history, err := lru.New[string, *failover.Execution](size)
	if err != nil {
		return nil, ctlerrors.Wrap(ctlerrors.KindFatal, "failed to allocate failover execution history", err)
	}
	return &Engine{
		cfg:       cfg,
		standby:   sm,
		notify:    notify,
		config:    config,
		log:       log,
		windows:   make(map[string][]*window),
		lastFired: make(map[string]time.Time),
		history:   history,
	}, nil
}

func (e *Engine) Name() string { return "failoverengine" }

// Start begins periodic rule evaluation on cfg.EvaluateInterval, following
// this codebase's standard `@every <dur>` cron idiom.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ctlerrors.AlreadyStarted(e.Name())
	}
	interval := e.cfg.EvaluateInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	e.started = true
	e.mu.Unlock()

	c := cron.New(cron.WithSeconds())
	id, err := c.AddFunc("@every "+interval.String(), func() { e.EvaluateAll(ctx, "scheduled") })
	if err != nil {
		return ctlerrors.ConfigError("invalid failoverengine schedule: " + err.Error())
	}
	e.cron = c
	e.cronID = id
	c.Start()
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	if e.cron != nil {
		stopCtx := e.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	e.started = false
	return nil
}

func (e *Engine) Ready(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ctlerrors.New(ctlerrors.KindFatal, "failoverengine not started")
	}
	return nil
}

// Schedule reports the evaluation loop's periodic-task bookkeeping.
func (e *Engine) Schedule() automation.Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := automation.StatusPaused
	if e.started {
		status = automation.StatusActive
	}
	return automation.Schedule{
		TaskName: e.Name(),
		Interval: e.cfg.EvaluateInterval,
		Status:   status,
		RunCount: e.evalCount,
		LastRun:  e.lastEval,
		NextRun:  e.nextEval,
	}
}

// EvaluateAll evaluates every enabled rule once, in declared order. It is
// exported so a component-health change event can trigger an immediate
// on-event evaluation in addition to the periodic schedule.
func (e *Engine) EvaluateAll(ctx context.Context, trigger string) {
	e.mu.Lock()
	rules := append([]failover.FailoverRule(nil), e.cfg.Rules...)
	e.evalCount++
	e.lastEval = time.Now().UTC()
	interval := e.cfg.EvaluateInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	e.nextEval = e.lastEval.Add(interval)
	e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		e.evaluateRule(ctx, rule, trigger)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule failover.FailoverRule, trigger string) {
	now := time.Now().UTC()

	e.mu.Lock()
	windows, ok := e.windows[rule.ID]
	if !ok {
		windows = make([]*window, len(rule.Conditions))
		for i := range windows {
			windows[i] = &window{}
		}
		e.windows[rule.ID] = windows
	}
	e.mu.Unlock()

	trueCount := 0
	for i, cond := range rule.Conditions {
		result := evaluateCondition(e.standby, cond)

		e.mu.Lock()
		windows[i].record(now, result)
		holds := windows[i].holds(cond.Duration, now)
		e.mu.Unlock()

		if holds {
			trueCount++
		}
	}

	confidence, decision := failover.Confidence(trueCount, len(rule.Conditions), rule.Priority)
	if decision == failover.DecisionWait {
		return
	}

	e.mu.Lock()
	if last, ok := e.lastFired[rule.ID]; ok && rule.Cooldown > 0 && now.Sub(last) < rule.Cooldown {
		e.mu.Unlock()
		return
	}
	if decision == failover.DecisionFailover {
		e.lastFired[rule.ID] = now
	}
	e.mu.Unlock()

	if decision != failover.DecisionFailover {
		e.raiseConfidenceAlert(rule, confidence)
		return
	}

	e.execute(ctx, rule, confidence, decision)
}

// raiseConfidenceAlert handles the `alert` decision: confidence crossed 0.6
// but not the 0.8-confidence/priority-8 bar `failover` requires. Unlike a
// `failover` decision it does not run the rule's configured actions or
// update last_executed — only a `failover` decision does that (spec.md §4.E
// step 4) — it just surfaces the near-miss so an operator can look.
func (e *Engine) raiseConfidenceAlert(rule failover.FailoverRule, confidence float64) {
	if e.notify == nil {
		return
	}
	target := ""
	if len(rule.Conditions) > 0 {
		target = rule.Conditions[0].Target
	}
	e.notify.CreateManual(
		alerting.SeverityWarning,
		"failover",
		fmt.Sprintf("failover rule %q approaching threshold", rule.ID),
		fmt.Sprintf("confidence %.2f for target %q did not reach the failover bar", confidence, target),
		nil,
	)
}

func (e *Engine) execute(ctx context.Context, rule failover.FailoverRule, confidence float64, decision failover.Decision) {
	target := ""
	if len(rule.Conditions) > 0 {
		target = rule.Conditions[0].Target
	}

	execution := &failover.Execution{
		ID:              fmt.Sprintf("failover-%s", uuid.NewString()),
		RuleID:          rule.ID,
		TargetComponent: target,
		Confidence:      confidence,
		Decision:        decision,
		StartedAt:       time.Now().UTC(),
		Status:          failover.StatusExecuting,
	}

	for _, action := range rule.Actions {
		actionExec := e.runAction(ctx, action)
		execution.Actions = append(execution.Actions, actionExec)
		if actionExec.Status == failover.StatusFailed {
			execution.Status = failover.StatusFailed
			execution.Error = actionExec.Error
		}
	}
	if execution.Status != failover.StatusFailed {
		execution.Status = failover.StatusCompleted
	}
	execution.EndedAt = time.Now().UTC()

	e.mu.Lock()
	e.history.Add(execution.ID, execution)
	e.mu.Unlock()
}

func (e *Engine) runAction(ctx context.Context, action failover.Action) failover.ActionExecution {
	exec := failover.ActionExecution{ActionType: action.Type, Status: failover.StatusExecuting, StartedAt: time.Now().UTC()}

	timeout := action.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch action.Type {
	case failover.ActionFailoverComponent:
		err = e.runFailoverComponent(actionCtx, action)
	case failover.ActionNotify:
		err = e.runNotify(action)
	case failover.ActionExecuteScript:
		err = e.runExecuteScript(actionCtx, action)
	case failover.ActionUpdateConfig:
		err = e.runUpdateConfig(action)
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	exec.EndedAt = time.Now().UTC()
	if err != nil {
		exec.Status = failover.StatusFailed
		exec.Error = err.Error()
		return exec
	}
	exec.Status = failover.StatusCompleted
	return exec
}

func (e *Engine) runFailoverComponent(ctx context.Context, action failover.Action) error {
	if e.standby == nil {
		return fmt.Errorf("no standby manager configured")
	}
	reason := action.Parameters["reason"]
	result, err := e.standby.ManualFailover(ctx, action.Target, reason)
	if err != nil {
		return err
	}
	if !result.Succeeded {
		return fmt.Errorf("failover of %q did not succeed: %s", action.Target, result.Reason)
	}
	return nil
}

func (e *Engine) runNotify(action failover.Action) error {
	if e.notify == nil {
		return fmt.Errorf("no notifier configured")
	}
	severity := alerting.Severity(action.Parameters["severity"])
	if severity == "" {
		severity = alerting.SeverityCritical
	}
	title := action.Parameters["title"]
	if title == "" {
		title = "failover action triggered for " + action.Target
	}
	message := action.Parameters["message"]
	e.notify.CreateManual(severity, "failover", title, message, nil)
	return nil
}

func (e *Engine) runExecuteScript(ctx context.Context, action failover.Action) error {
	command := splitCommand(action.Parameters["command"])
	if len(command) == 0 {
		return fmt.Errorf("execute-script action has no command")
	}
	_, err := recoveryengine.ExecuteCommand(ctx, command, action.Timeout, nil)
	return err
}

func (e *Engine) runUpdateConfig(action failover.Action) error {
	if e.config == nil {
		return fmt.Errorf("no config mutator configured")
	}
	return e.config.UpdateConfig(action.Target, action.Parameters["value"])
}

// splitCommand splits a shell-style command string on whitespace. Actions
// declare their command as a single string in configuration; this control
// plane never invokes a shell, avoiding injection through rule parameters.
func splitCommand(s string) []string {
	var out []string
	field := ""
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if field != "" {
				out = append(out, field)
				field = ""
			}
			continue
		}
		field += string(r)
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}

// History returns a recorded failover execution by ID.
func (e *Engine) History(id string) (*failover.Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Get(id)
}
