// Package errors provides the error taxonomy for contention-observation runs.
// It defines sentinel errors for every check a run can fail, a typed
// HarnessError carrying the failing phase, check name and observed values,
// and classification helpers.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewHarnessError(errors.ErrNotFound, "thread not found").
//	    WithPhase("resolve").
//	    WithObserved("thread_name", "Debuggee Thread")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTimedOut) { ... }
//
//	var he *errors.HarnessError
//	if errors.As(err, &he) {
//	    fmt.Println(he.Phase)
//	}
//
// None of the errors in this package are retryable: every one of them is
// terminal for the run that produced it.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for conditions that do not fail the run on their own.
	SeverityWarning Severity = iota
	// SeverityError is for failed checks.
	SeverityError
	// SeverityCritical is for conditions that make the run impossible to perform.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Identity resolution errors
var (
	// ErrNotFound indicates that no live thread carries the expected name.
	ErrNotFound = New("target thread not found")
	// ErrInconsistentState indicates a malformed thread enumeration result.
	ErrInconsistentState = New("inconsistent runtime state")
	// ErrFieldAccess indicates that the monitor field or its class could not be resolved.
	ErrFieldAccess = New("field access failed")
	// ErrNullField indicates that the monitor field holds no value.
	ErrNullField = New("field is null")
)

// Setup errors
var (
	// ErrCapabilityUnavailable indicates that the runtime cannot generate monitor events.
	ErrCapabilityUnavailable = New("capability unavailable")
	// ErrRegistration indicates that callbacks or the agent proc could not be bound.
	ErrRegistration = New("registration failed")
)

// Run errors
var (
	// ErrTimedOut indicates that a barrier wait exceeded its deadline.
	ErrTimedOut = New("barrier wait timed out")
	// ErrAssertionFailed indicates that a post-scenario check did not hold.
	ErrAssertionFailed = New("assertion failed")
	// ErrUnexpectedEvent indicates an event delivered outside the window in
	// which notifications were enabled.
	ErrUnexpectedEvent = New("unexpected event")
	// ErrRuntime indicates that a runtime call returned an error.
	ErrRuntime = New("runtime call failed")
)

// -----------------------------------------------------------------------------
// HarnessError
// -----------------------------------------------------------------------------

// HarnessError is a failed check with the context needed to diagnose it.
//
// Example:
//
//	err := errors.NewHarnessError(errors.ErrAssertionFailed, "no contention event observed").
//	    WithPhase("validate").
//	    WithObserved("event_count", 0)
//	fmt.Println(err)
//	// "check failed [phase=validate, event_count=0]: no contention event observed: assertion failed"
type HarnessError struct {
	Kind     error
	Phase    string
	Message  string
	Observed map[string]any
	cause    error
	severity Severity
}

// NewHarnessError creates a HarnessError of the given kind. Kind should be
// one of the sentinels in this package.
func NewHarnessError(kind error, message string) *HarnessError {
	severity := SeverityError
	if kind == ErrCapabilityUnavailable || kind == ErrRegistration || kind == ErrInconsistentState {
		severity = SeverityCritical
	}
	return &HarnessError{
		Kind:     kind,
		Message:  message,
		severity: severity,
	}
}

// WithPhase adds the coordinator phase to the error context.
func (e *HarnessError) WithPhase(phase string) *HarnessError {
	e.Phase = phase
	return e
}

// WithObserved records an observed value that explains the failure.
func (e *HarnessError) WithObserved(key string, value any) *HarnessError {
	if e.Observed == nil {
		e.Observed = make(map[string]any)
	}
	e.Observed[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *HarnessError) WithCause(cause error) *HarnessError {
	e.cause = cause
	return e
}

// WithSeverity sets the error severity.
func (e *HarnessError) WithSeverity(s Severity) *HarnessError {
	e.severity = s
	return e
}

// Severity returns the error severity.
func (e *HarnessError) Severity() Severity {
	return e.severity
}

// IsRetryable always returns false. A failed check is terminal for its run.
func (e *HarnessError) IsRetryable() bool {
	return false
}

// Error returns the formatted error message.
func (e *HarnessError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	keys := make([]string, 0, len(e.Observed))
	for k := range e.Observed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Observed[k]))
	}

	prefix := "check failed"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("check failed [%s]", strings.Join(parts, ", "))
	}

	msg := fmt.Sprintf("%s: %s", prefix, e.Message)
	if e.Kind != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the kind and the cause so that errors.Is matches either.
func (e *HarnessError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// NewTimeoutError creates a HarnessError for a barrier wait that exceeded
// its deadline.
func NewTimeoutError(phase string, timeout time.Duration) *HarnessError {
	return NewHarnessError(ErrTimedOut, "workload did not reach checkpoint").
		WithPhase(phase).
		WithObserved("timeout", timeout)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// Kind returns the sentinel kind of err, or nil if err does not wrap one of
// this package's sentinels.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	var he *HarnessError
	if As(err, &he) {
		return he.Kind
	}
	for _, k := range Kinds() {
		if Is(err, k) {
			return k
		}
	}
	return nil
}

// Kinds returns every sentinel kind in taxonomy order.
func Kinds() []error {
	return []error{
		ErrNotFound,
		ErrInconsistentState,
		ErrFieldAccess,
		ErrNullField,
		ErrCapabilityUnavailable,
		ErrRegistration,
		ErrTimedOut,
		ErrAssertionFailed,
		ErrUnexpectedEvent,
		ErrRuntime,
	}
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that are not HarnessErrors.
func GetSeverity(err error) Severity {
	var he *HarnessError
	if As(err, &he) {
		return he.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
