// Package recoveryengine implements dependency-ordered component recovery
// with rollback and validation (the recovery half of component E).
package recoveryengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/R3E-Network/service_layer/domain/recovery"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/standby"
)

// Config configures the Recovery Engine's deadline and history retention.
type Config struct {
	Components       []recovery.RecoveryComponent
	MaxRecoveryTime  time.Duration
	ValidationTimeout time.Duration
	HistorySize      int

	// TradingChecks, PerfThresholds, and DataIntegrityChecks back spec.md
	// §6's recovery.validation block: whole-system integrity checks run
	// once every component has individually recovered (step 3 of the
	// recovery sequence), on top of (not instead of) each component's own
	// ValidationSteps. TradingChecks and DataIntegrityChecks name
	// components that must report standby.StatusHealthy / a zero-lag Sync
	// record respectively; PerfThresholds maps a component name to the
	// maximum acceptable response time in milliseconds.
	TradingChecks       []string
	PerfThresholds      map[string]float64
	DataIntegrityChecks []string
}

// DefaultConfig returns the spec-mandated defaults (15 minute deadline,
// ≥60s enforced by New).
func DefaultConfig() Config {
	return Config{
		MaxRecoveryTime:   15 * time.Minute,
		ValidationTimeout: 30 * time.Second,
		HistorySize:       100,
	}
}

// Engine runs at most one recovery at a time and retains a bounded history
// of past executions.
type Engine struct {
	cfg     Config
	standby standby.Manager
	log     *logging.Logger

	mu        sync.Mutex
	running   bool
	current   *recovery.Execution
	history   *lru.Cache[string, *recovery.Execution]
}

// New constructs a Recovery Engine. Returns a configuration error if
// MaxRecoveryTime is below the spec's 60 s floor.
func New(cfg Config, sm standby.Manager, log *logging.Logger) (*Engine, error) {
	if cfg.MaxRecoveryTime < 60*time.Second {
		return nil, ctlerrors.ConfigError("recovery.max_recovery_time must be >= 60s")
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = 100
	}
	history, err := lru.New[string, *recovery.Execution](size)
	if err != nil {
		return nil, ctlerrors.Wrap(ctlerrors.KindFatal, "failed to allocate execution history", err)
	}
	return &Engine{cfg: cfg, standby: sm, log: log, history: history}, nil
}

func (e *Engine) Name() string { return "recoveryengine" }

func (e *Engine) Start(ctx context.Context) error { return nil }
func (e *Engine) Stop(ctx context.Context) error  { return nil }
func (e *Engine) Ready(ctx context.Context) error { return nil }

// Recover assembles a dependency-ordered plan for the named subset (or all
// configured components if subset is empty) and executes it. Only one
// recovery runs at a time.
func (e *Engine) Recover(ctx context.Context, trigger string, subset []string) (*recovery.Execution, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ctlerrors.FatalViolation("a recovery is already in progress")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ordered, err := plan(e.cfg.Components, subset)
	if err != nil {
		return nil, err
	}

	execution := &recovery.Execution{
		ID:        fmt.Sprintf("recovery-%d", time.Now().UnixNano()),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Status:    recovery.StatusExecuting,
	}

	e.mu.Lock()
	e.current = execution
	e.mu.Unlock()

	deadline := e.cfg.MaxRecoveryTime
	if deadline <= 0 {
		deadline = 15 * time.Minute
	}
	recoveryCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	completed := make([]recovery.RecoveryComponent, 0, len(ordered))
	failed := false

	for _, component := range ordered {
		compExec := e.recoverComponent(recoveryCtx, component)
		execution.Components = append(execution.Components, compExec)
		if compExec.Status == recovery.StatusCompleted {
			completed = append(completed, component)
			continue
		}
		failed = true
		break
	}

	if !failed {
		if err := e.validateSystem(recoveryCtx); err != nil {
			failed = true
			execution.Error = err.Error()
		}
	}

	if failed {
		e.rollback(recoveryCtx, completed, execution)
		execution.Status = recovery.StatusRolledBack
	} else {
		execution.Status = recovery.StatusCompleted
	}

	if recoveryCtx.Err() != nil && execution.Error == "" {
		execution.Error = "recovery exceeded max_recovery_time"
	}

	execution.EndedAt = time.Now().UTC()

	e.mu.Lock()
	e.current = nil
	e.history.Add(execution.ID, execution)
	e.mu.Unlock()

	return execution, nil
}

func (e *Engine) recoverComponent(ctx context.Context, component recovery.RecoveryComponent) recovery.ComponentExecution {
	compExec := recovery.ComponentExecution{ComponentName: component.Name, Status: recovery.StatusExecuting}

	for _, dep := range component.Dependencies {
		if e.standby == nil {
			continue
		}
		health := e.standby.GetComponentHealth(dep)
		if health == nil || health.Status != standby.StatusHealthy {
			compExec.Status = recovery.StatusFailed
			compExec.Error = fmt.Sprintf("dependency %q unhealthy", dep)
			return compExec
		}
	}

	for _, step := range component.RecoverySteps {
		stepExec := runStep(ctx, step)
		compExec.Steps = append(compExec.Steps, stepExec)
		if stepExec.Status != recovery.StatusCompleted && step.Critical {
			compExec.Status = recovery.StatusFailed
			compExec.Error = fmt.Sprintf("critical step %q failed: %s", step.ID, stepExec.Error)
			return compExec
		}
	}

	for _, v := range component.ValidationSteps {
		if ok, reason := e.runValidation(ctx, v); !ok {
			compExec.Status = recovery.StatusFailed
			compExec.Error = fmt.Sprintf("validation %q failed: %s", v.ID, reason)
			return compExec
		}
	}

	compExec.Status = recovery.StatusCompleted
	return compExec
}

// runValidation evaluates one ValidationStep. health-check and
// connectivity validations read from the StandbyManager; every other type
// (performance, data-integrity) passes unless the validation deadline has
// already expired, and Criteria.Threshold is not compared.
// A custom validator reference with no registered handler is itself a
// validation failure, never a silent pass.
func (e *Engine) runValidation(ctx context.Context, v recovery.ValidationStep) (bool, string) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = e.cfg.ValidationTimeout
	}
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch v.Type {
	case recovery.ValidationHealthCheck, recovery.ValidationConnectivity:
		if e.standby == nil {
			return false, "no standby manager configured"
		}
		health := e.standby.GetComponentHealth(v.Target)
		if health == nil {
			return false, fmt.Sprintf("no health record for %q", v.Target)
		}
		if health.Status != standby.StatusHealthy {
			return false, fmt.Sprintf("%q reports status %q", v.Target, health.Status)
		}
		return true, ""
	case recovery.ValidationCustom:
		return false, "no custom validator registered for " + v.Criteria.CustomValidator
	default:
		select {
		case <-vctx.Done():
			return false, "validation timed out"
		default:
		}
		return true, ""
	}
}

// validateSystem runs the whole-system integrity checks configured under
// recovery.validation (spec.md §6), on top of the per-component
// ValidationSteps each recoverComponent call already ran: trading-system
// components must report standby.StatusHealthy, response times must stay
// within their configured thresholds, and data-integrity components must
// report a synced (zero-lag) Sync record. Any unconfigured section is
// skipped rather than treated as a failure; with the validation block
// entirely empty this is still a no-op, honestly so.
func (e *Engine) validateSystem(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if e.standby == nil && (len(e.cfg.TradingChecks) > 0 || len(e.cfg.PerfThresholds) > 0 || len(e.cfg.DataIntegrityChecks) > 0) {
		return ctlerrors.FatalViolation("whole-system validation configured but no standby manager is available")
	}

	for _, name := range e.cfg.TradingChecks {
		health := e.standby.GetComponentHealth(name)
		if health == nil {
			return ctlerrors.FatalViolation(fmt.Sprintf("trading-system check %q: no health record", name))
		}
		if health.Status != standby.StatusHealthy {
			return ctlerrors.FatalViolation(fmt.Sprintf("trading-system check %q: reports status %q", name, health.Status))
		}
	}

	for name, maxMS := range e.cfg.PerfThresholds {
		health := e.standby.GetComponentHealth(name)
		if health == nil {
			return ctlerrors.FatalViolation(fmt.Sprintf("performance check %q: no health record", name))
		}
		if float64(health.ResponseTimeMS) > maxMS {
			return ctlerrors.FatalViolation(fmt.Sprintf("performance check %q: response time %dms exceeds threshold %.0fms", name, health.ResponseTimeMS, maxMS))
		}
	}

	for _, name := range e.cfg.DataIntegrityChecks {
		health := e.standby.GetComponentHealth(name)
		if health == nil {
			return ctlerrors.FatalViolation(fmt.Sprintf("data-integrity check %q: no health record", name))
		}
		if health.Sync == nil {
			return ctlerrors.FatalViolation(fmt.Sprintf("data-integrity check %q: no sync status reported", name))
		}
		if health.Sync.LagSeconds > 0 {
			return ctlerrors.FatalViolation(fmt.Sprintf("data-integrity check %q: sync lag %.1fs", name, health.Sync.LagSeconds))
		}
	}

	return nil
}

// rollback walks completed components in reverse order, best-effort
// executing their rollback steps. Errors are logged, never aborting the
// walk.
func (e *Engine) rollback(ctx context.Context, completed []recovery.RecoveryComponent, execution *recovery.Execution) {
	for i := len(completed) - 1; i >= 0; i-- {
		component := completed[i]
		for _, step := range component.RollbackSteps {
			stepExec := runStep(ctx, step)
			if stepExec.Status != recovery.StatusCompleted {
				e.log.WithError(fmt.Errorf("%s", stepExec.Error)).Warn(
					fmt.Sprintf("recoveryengine: rollback step %q failed for component %q, continuing", step.ID, component.Name))
			}
		}
	}
}

// History looks up a finished recovery execution by id; the boolean is
// false if no execution with that id is retained.
func (e *Engine) History(id string) (*recovery.Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Get(id)
}

// Current returns the in-flight execution, or nil if no recovery is
// running.
func (e *Engine) Current() *recovery.Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}
