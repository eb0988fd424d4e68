// Package recovery defines the dependency-ordered component recovery types
// the Recovery Engine plans and executes.
package recovery

import "time"

// ValidationType is the closed enumeration of validation step kinds.
type ValidationType string

const (
	ValidationHealthCheck   ValidationType = "health-check"
	ValidationConnectivity  ValidationType = "connectivity"
	ValidationDataIntegrity ValidationType = "data-integrity"
	ValidationPerformance   ValidationType = "performance"
	ValidationCustom        ValidationType = "custom"
)

// RecoveryStep is an atomic, timeout-bounded, optionally retryable
// operation within a component's recovery.
type RecoveryStep struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	Command        []string          `json:"command"`
	Timeout        time.Duration     `json:"timeout"`
	Critical       bool              `json:"critical"`
	Retryable      bool              `json:"retryable"`
	RetryAttempts  int               `json:"retry_attempts"`
	RetryDelay     time.Duration     `json:"retry_delay"`
	Environment    map[string]string `json:"environment,omitempty"`
}

// ValidationCriteria is the expected-outcome shape a ValidationStep checks
// against. Exactly one of ExpectedValue/Threshold/CustomValidator applies,
// selected by the owning ValidationStep's Type.
type ValidationCriteria struct {
	ExpectedValue  string     `json:"expected_value,omitempty"`
	Comparator     string     `json:"comparator,omitempty"`
	Threshold      float64    `json:"threshold,omitempty"`
	CustomValidator string    `json:"custom_validator,omitempty"`
}

// ValidationStep checks a post-recovery condition for a component.
type ValidationStep struct {
	ID       string              `json:"id"`
	Type     ValidationType      `json:"type"`
	Target   string              `json:"target"`
	Criteria ValidationCriteria  `json:"criteria"`
	Timeout  time.Duration       `json:"timeout"`
}

// RecoveryComponent is a named unit of infrastructure recovered as a group.
// Priority determines ordering (lower runs first); Dependencies must form a
// DAG over other component names.
type RecoveryComponent struct {
	Name             string            `json:"name"`
	Priority         int               `json:"priority"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	RecoverySteps    []RecoveryStep    `json:"recovery_steps"`
	ValidationSteps  []ValidationStep  `json:"validation_steps,omitempty"`
	RollbackSteps    []RecoveryStep    `json:"rollback_steps,omitempty"`
}

// ExecutionStatus is the closed enumeration of terminal and in-flight
// states for a recovery or failover Execution.
type ExecutionStatus string

const (
	StatusPending    ExecutionStatus = "pending"
	StatusExecuting  ExecutionStatus = "executing"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
	StatusRolledBack ExecutionStatus = "rolled-back"
)

// StepExecution is the observable record of one RecoveryStep run.
type StepExecution struct {
	StepID     string          `json:"step_id"`
	Status     ExecutionStatus `json:"status"`
	Output     string          `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	RetryCount int             `json:"retry_count"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
}

// ComponentExecution is the observable record of one component's recovery
// within an Execution.
type ComponentExecution struct {
	ComponentName string          `json:"component_name"`
	Status        ExecutionStatus `json:"status"`
	Steps         []StepExecution `json:"steps"`
	Error         string          `json:"error,omitempty"`
}

// Execution is one in-flight or historical run of a recovery sequence.
type Execution struct {
	ID         string                `json:"id"`
	Trigger    string                `json:"trigger"`
	StartedAt  time.Time             `json:"started_at"`
	EndedAt    time.Time             `json:"ended_at"`
	Status     ExecutionStatus       `json:"status"`
	Components []ComponentExecution  `json:"components"`
	Error      string                `json:"error,omitempty"`
}
