// Package errors provides the control plane's error taxonomy: a small set of
// kinds (not type names) that every component maps its failures onto, so the
// orchestrator can aggregate health without inspecting concrete error types.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies which of the taxonomy's five buckets an error belongs to.
type Kind string

const (
	// KindConfiguration covers invalid rules, cyclic component dependencies,
	// non-positive intervals, and comparator mismatches. Fatal at startup.
	KindConfiguration Kind = "configuration"

	// KindTransientIO covers a single file, socket, or process call that
	// failed once. Recoverable: retry if the caller is retry-capable,
	// otherwise log and continue.
	KindTransientIO Kind = "transient_io"

	// KindTimeout covers a deadline exceeded on a bounded operation (probe,
	// recovery step) or an abandoned periodic tick.
	KindTimeout Kind = "timeout"

	// KindValidation covers a probe or integrity check that reported a
	// false result. This is data, not an exception.
	KindValidation Kind = "validation"

	// KindFatal covers state-machine violations: starting twice,
	// acknowledging an unknown alert id, and similar caller misuse.
	KindFatal Kind = "fatal"
)

// ControlError is a structured error carrying a taxonomy Kind, a
// human-readable message, optional structured details, and the wrapped
// underlying cause.
type ControlError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface.
func (e *ControlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *ControlError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured field to the error and returns it for chaining.
func (e *ControlError) WithDetails(key string, value interface{}) *ControlError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ControlError with no wrapped cause.
func New(kind Kind, message string) *ControlError {
	return &ControlError{Kind: kind, Message: message}
}

// Wrap creates a ControlError around an existing error.
func Wrap(kind Kind, message string, err error) *ControlError {
	return &ControlError{Kind: kind, Message: message, Err: err}
}

// Configuration errors

func ConfigError(message string) *ControlError {
	return New(KindConfiguration, message)
}

func CyclicDependency(component string) *ControlError {
	return New(KindConfiguration, "cyclic component dependency").WithDetails("component", component)
}

func InvalidInterval(name string, interval interface{}) *ControlError {
	return New(KindConfiguration, "non-positive interval").
		WithDetails("name", name).
		WithDetails("interval", interval)
}

// Transient I/O errors

func TransientIO(operation string, err error) *ControlError {
	return Wrap(KindTransientIO, "transient I/O failure", err).WithDetails("operation", operation)
}

// Timeout errors

func Timeout(operation string) *ControlError {
	return New(KindTimeout, "operation timed out").WithDetails("operation", operation)
}

// Validation errors

func ValidationFailed(check string, reason string) *ControlError {
	return New(KindValidation, "validation check failed").
		WithDetails("check", check).
		WithDetails("reason", reason)
}

// Fatal state-machine violations

func AlreadyStarted(component string) *ControlError {
	return New(KindFatal, "component already started").WithDetails("component", component)
}

func UnknownAlert(id string) *ControlError {
	return New(KindFatal, "unknown alert id").WithDetails("alert_id", id)
}

func FatalViolation(message string) *ControlError {
	return New(KindFatal, message)
}

// Helper functions

// Is reports whether err is a ControlError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *ControlError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// As extracts a ControlError from an error chain.
func As(err error) *ControlError {
	var ce *ControlError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
