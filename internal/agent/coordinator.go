package agent

import (
	"sync"
	"time"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Barrier is the observer side of the two-phase rendezvous with the workload.
type Barrier interface {
	// WaitForSync waits up to timeout for the workload to reach its next
	// checkpoint. A non-positive timeout waits indefinitely.
	WaitForSync(timeout time.Duration) bool
	// ResumeSync lets the workload leave the checkpoint it reached.
	ResumeSync() bool
	// Abort releases the workload for good.
	Abort()
	// Aborted reports whether Abort was called.
	Aborted() bool
}

// Coordinator drives a run through its phases: wait for the workload's
// setup checkpoint, resolve the target and enable notifications, resume the
// workload, wait for the scenario to complete, disable notifications and
// validate the event count.
//
// The two barrier waits are the only blocking points.
type Coordinator struct {
	rt       vm.Runtime
	barrier  Barrier
	resolver *Resolver
	state    *State
	bus      *event.Bus
	logger   *logging.Logger

	timeout     time.Duration
	disableBoth bool

	mu       sync.Mutex
	phase    Phase
	history  []Transition
	enabled  map[vm.EventKind]bool
	teardown bool
}

// CoordinatorConfig holds the dependencies of a Coordinator.
type CoordinatorConfig struct {
	Runtime  vm.Runtime
	Barrier  Barrier
	Resolver *Resolver
	State    *State
	Bus      *event.Bus
	Logger   *logging.Logger

	// Timeout bounds each barrier wait.
	Timeout time.Duration
	// DisableBoth disables MonitorContendedEntered as well as
	// MonitorContendedEnter during teardown.
	DisableBoth bool
}

// NewCoordinator creates a Coordinator in PhaseIdle.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		rt:          cfg.Runtime,
		barrier:     cfg.Barrier,
		resolver:    cfg.Resolver,
		state:       cfg.State,
		bus:         cfg.Bus,
		logger:      logger,
		timeout:     cfg.Timeout,
		disableBoth: cfg.DisableBoth,
		phase:       PhaseIdle,
		enabled:     make(map[vm.EventKind]bool),
	}
}

// Run executes the whole protocol. It returns the run's failure, if any;
// the same error is recorded in the shared State.
func (c *Coordinator) Run() error {
	if err := c.transition(PhaseAwaitingInitialSync, "agent thread started"); err != nil {
		return c.abort(err)
	}
	if !c.barrier.WaitForSync(c.timeout) {
		return c.abort(c.waitFailure())
	}

	target, err := c.resolver.Resolve()
	if err != nil {
		return c.abort(err)
	}
	if !c.state.SetTarget(target) {
		_ = c.resolver.Release(target)
		return c.abort(errors.NewHarnessError(errors.ErrInconsistentState, "target already resolved").
			WithPhase(c.Phase().String()))
	}
	if c.bus != nil {
		c.bus.Publish(event.NewTargetResolvedEvent(target.ThreadName, target.FieldName, target.Listed))
	}

	if err := c.transition(PhaseScenarioRunning, "target resolved"); err != nil {
		return c.abort(err)
	}
	c.state.ResetCount()
	for _, kind := range vm.MonitorEventKinds() {
		if err := c.enable(kind); err != nil {
			return c.abort(err)
		}
	}
	if !c.barrier.ResumeSync() {
		return c.abort(errors.NewHarnessError(errors.ErrRuntime, "workload was not parked at its setup checkpoint").
			WithPhase(PhaseScenarioRunning.String()))
	}

	if err := c.transition(PhaseAwaitingCompletionSync, "workload resumed"); err != nil {
		return c.abort(err)
	}
	if !c.barrier.WaitForSync(c.timeout) {
		return c.abort(c.waitFailure())
	}

	// The workload is parked at its final checkpoint from here on, so it
	// is resumed rather than aborted whatever the outcome.
	defer c.barrier.ResumeSync()

	if err := c.Teardown(); err != nil {
		c.state.Fail(c.Phase(), err)
	}

	count := c.state.EventCount()
	c.logger.Info("scenario complete", "event_count", count)
	if count == 0 {
		c.state.Fail(c.Phase(), errors.NewHarnessError(errors.ErrAssertionFailed, "no contention event observed").
			WithPhase(c.Phase().String()).
			WithObserved("event_count", count))
	}

	if err := c.state.Err(); err != nil {
		_ = c.transition(PhaseFailed, err.Error())
		return err
	}
	if err := c.transition(PhaseDone, "contention observed"); err != nil {
		return c.abort(err)
	}
	return nil
}

// abort records err, tears down, releases the workload and moves to
// PhaseFailed.
func (c *Coordinator) abort(err error) error {
	from := c.Phase()
	c.state.Fail(from, err)
	c.logger.WithPhase(from.String()).Error("run aborted", "error", err.Error())

	if terr := c.Teardown(); terr != nil {
		c.state.Fail(from, terr)
	}
	c.barrier.Abort()
	_ = c.transition(PhaseFailed, err.Error())
	return c.state.Err()
}

func (c *Coordinator) waitFailure() error {
	phase := c.Phase()
	if c.barrier.Aborted() {
		return errors.NewHarnessError(errors.ErrRuntime, "barrier aborted").WithPhase(phase.String())
	}
	return errors.NewTimeoutError(phase.String(), c.timeout)
}

func (c *Coordinator) enable(kind vm.EventKind) error {
	c.state.OpenWindow(kind)
	if err := c.rt.SetEventNotificationMode(true, kind); err != nil {
		c.state.CloseWindow(kind)
		return errors.NewHarnessError(errors.ErrRuntime, "enable "+kind.String()).
			WithPhase(c.Phase().String()).
			WithCause(err)
	}

	c.mu.Lock()
	c.enabled[kind] = true
	c.mu.Unlock()
	c.logger.Debug("notifications enabled", "kind", kind.String())
	return nil
}

// Teardown disables the notifications the coordinator enabled. Only
// MonitorContendedEnter is disabled unless the coordinator was configured
// to disable both. It is idempotent: no kind is ever disabled twice.
func (c *Coordinator) Teardown() error {
	c.mu.Lock()
	if c.teardown {
		c.mu.Unlock()
		return nil
	}
	c.teardown = true
	kinds := []vm.EventKind{vm.MonitorContendedEnter}
	if c.disableBoth {
		kinds = append(kinds, vm.MonitorContendedEntered)
	}
	var pending []vm.EventKind
	for _, kind := range kinds {
		if c.enabled[kind] {
			pending = append(pending, kind)
			c.enabled[kind] = false
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, kind := range pending {
		if err := c.rt.SetEventNotificationMode(false, kind); err != nil {
			errs = append(errs, errors.NewHarnessError(errors.ErrRuntime, "disable "+kind.String()).
				WithPhase(c.Phase().String()).
				WithCause(err))
			continue
		}
		c.state.CloseWindow(kind)
		c.logger.Debug("notifications disabled", "kind", kind.String())
	}
	return errors.Join(errs...)
}

// Enabled reports whether the coordinator left notifications of kind enabled.
func (c *Coordinator) Enabled(kind vm.EventKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[kind]
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// History returns the transitions taken so far.
func (c *Coordinator) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Coordinator) transition(to Phase, reason string) error {
	c.mu.Lock()
	from := c.phase
	if from.IsTerminal() {
		c.mu.Unlock()
		return NewTransitionError(from, to, ErrTerminalPhase)
	}
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return NewTransitionError(from, to, ErrInvalidTransition)
	}
	c.phase = to
	c.history = append(c.history, Transition{
		From:      from,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	c.mu.Unlock()

	c.logger.Info("phase changed", "from", from.String(), "to", to.String(), "reason", reason)
	if c.bus != nil {
		c.bus.Publish(event.NewPhaseChangedEvent(from.String(), to.String(), reason))
	}
	return nil
}
