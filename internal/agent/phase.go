package agent

import (
	"errors"
	"slices"
	"time"
)

// Phase is a state of the barrier coordinator.
type Phase string

const (
	// PhaseIdle is the state before the agent thread starts.
	PhaseIdle Phase = "idle"

	// PhaseAwaitingInitialSync waits for the workload to reach its setup
	// checkpoint.
	PhaseAwaitingInitialSync Phase = "awaiting_initial_sync"

	// PhaseScenarioRunning resolves the target, resets the counter, enables
	// notifications and resumes the workload.
	PhaseScenarioRunning Phase = "scenario_running"

	// PhaseAwaitingCompletionSync waits for the workload to finish the
	// contention scenario.
	PhaseAwaitingCompletionSync Phase = "awaiting_completion_sync"

	// PhaseDone indicates every check passed.
	PhaseDone Phase = "done"

	// PhaseFailed indicates the run terminated with the failure flag set.
	PhaseFailed Phase = "failed"
)

// AllPhases returns all defined phases in lifecycle order.
func AllPhases() []Phase {
	return []Phase{
		PhaseIdle,
		PhaseAwaitingInitialSync,
		PhaseScenarioRunning,
		PhaseAwaitingCompletionSync,
		PhaseDone,
		PhaseFailed,
	}
}

// IsTerminal returns true if the phase is Done or Failed.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// ValidTransitions defines which phase transitions are allowed.
// Every non-terminal phase can fail; nothing leaves a terminal phase.
var ValidTransitions = map[Phase][]Phase{
	PhaseIdle: {
		PhaseAwaitingInitialSync,
		PhaseFailed, // gate failed or run cancelled before start
	},
	PhaseAwaitingInitialSync: {
		PhaseScenarioRunning,
		PhaseFailed, // timeout or resolver failure
	},
	PhaseScenarioRunning: {
		PhaseAwaitingCompletionSync,
		PhaseFailed,
	},
	PhaseAwaitingCompletionSync: {
		PhaseDone,
		PhaseFailed, // timeout or no event observed
	},

	PhaseDone:   {},
	PhaseFailed: {},
}

// CanTransition checks whether a transition from one phase to another is
// valid according to the ValidTransitions map.
func CanTransition(from, to Phase) bool {
	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	return slices.Contains(validTargets, to)
}

// Transition records a single coordinator state change.
type Transition struct {
	From      Phase     `json:"from,omitempty" yaml:"from,omitempty"`
	To        Phase     `json:"to" yaml:"to"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Errors for phase transitions.
var (
	// ErrInvalidTransition indicates an attempted transition that is not allowed.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrTerminalPhase indicates an attempt to transition from a terminal phase.
	ErrTerminalPhase = errors.New("cannot transition from terminal phase")
)

// TransitionError wraps transition failures with the phases involved.
type TransitionError struct {
	From Phase
	To   Phase
	Err  error
}

func (e *TransitionError) Error() string {
	return "phase transition from " + string(e.From) + " to " + string(e.To) +
		" failed: " + e.Err.Error()
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to Phase, err error) *TransitionError {
	return &TransitionError{From: from, To: to, Err: err}
}
