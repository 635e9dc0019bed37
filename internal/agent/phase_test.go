package agent

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseAwaitingInitialSync, true},
		{PhaseIdle, PhaseFailed, true},
		{PhaseIdle, PhaseScenarioRunning, false},
		{PhaseAwaitingInitialSync, PhaseScenarioRunning, true},
		{PhaseAwaitingInitialSync, PhaseDone, false},
		{PhaseScenarioRunning, PhaseAwaitingCompletionSync, true},
		{PhaseScenarioRunning, PhaseAwaitingInitialSync, false},
		{PhaseAwaitingCompletionSync, PhaseDone, true},
		{PhaseAwaitingCompletionSync, PhaseFailed, true},
		{PhaseDone, PhaseFailed, false},
		{PhaseFailed, PhaseDone, false},
		{Phase("bogus"), PhaseDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPhase_IsTerminal(t *testing.T) {
	for _, p := range AllPhases() {
		want := p == PhaseDone || p == PhaseFailed
		if got := p.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", p, got, want)
		}
	}
}

func TestValidTransitions_CoversAllPhases(t *testing.T) {
	for _, p := range AllPhases() {
		if _, ok := ValidTransitions[p]; !ok {
			t.Errorf("ValidTransitions has no entry for %s", p)
		}
		if !p.IsTerminal() && !CanTransition(p, PhaseFailed) {
			t.Errorf("%s cannot fail", p)
		}
	}
}

func TestTransitionError(t *testing.T) {
	err := NewTransitionError(PhaseDone, PhaseFailed, ErrTerminalPhase)
	if !errors.Is(err, ErrTerminalPhase) {
		t.Error("TransitionError should unwrap to its cause")
	}
	want := "phase transition from done to failed failed: cannot transition from terminal phase"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
