package agent

import (
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Filter counts monitor events whose thread and object are the resolved
// target. It never returns an error to the runtime: failures go to the
// run's failure flag.
type Filter struct {
	rt     vm.Runtime
	state  *State
	bus    *event.Bus
	logger *logging.Logger
	trace  glob.Glob // nil traces every delivery
}

// NewFilter creates a Filter. An empty tracePattern logs every delivery at
// DEBUG; otherwise only deliveries on matching thread names are logged.
// The pattern never affects counting.
func NewFilter(rt vm.Runtime, state *State, bus *event.Bus, logger *logging.Logger, tracePattern string) (*Filter, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	f := &Filter{rt: rt, state: state, bus: bus, logger: logger}
	if tracePattern != "" {
		g, err := glob.Compile(tracePattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trace pattern %q", tracePattern)
		}
		f.trace = g
	}
	return f, nil
}

// Callbacks returns the runtime callback table bound to this filter.
func (f *Filter) Callbacks() vm.Callbacks {
	return vm.Callbacks{
		MonitorContendedEnter: func(env vm.Env, thread, object vm.Ref) {
			f.Handle(vm.MonitorContendedEnter, env, thread, object)
		},
		MonitorContendedEntered: func(env vm.Env, thread, object vm.Ref) {
			f.Handle(vm.MonitorContendedEntered, env, thread, object)
		},
	}
}

// Handle classifies one event delivery.
func (f *Filter) Handle(kind vm.EventKind, env vm.Env, thread, object vm.Ref) {
	deliveredOn := ""
	if env != nil {
		deliveredOn = env.ThreadName()
	}

	target := f.state.Target()
	if target == nil {
		f.unexpected(kind, deliveredOn, "event delivered before target was resolved")
		return
	}
	if !f.state.InWindow(kind) {
		f.unexpected(kind, deliveredOn, "event delivered while notifications were disabled")
		return
	}

	matched := f.rt.IsSameObject(thread, target.Thread) && f.rt.IsSameObject(object, target.Object)
	var count int64
	if matched {
		count = f.state.Increment()
	} else {
		count = f.state.EventCount()
	}

	f.traceEvent(kind, deliveredOn, thread, matched, count)
	if f.bus != nil {
		f.bus.Publish(event.NewMonitorEvent(kind.String(), deliveredOn, matched, count))
	}
}

func (f *Filter) unexpected(kind vm.EventKind, deliveredOn, msg string) {
	err := errors.NewHarnessError(errors.ErrUnexpectedEvent, msg).
		WithObserved("kind", kind.String()).
		WithObserved("delivered_on", deliveredOn)
	f.logger.Error("unexpected monitor event",
		"kind", kind.String(),
		"delivered_on", deliveredOn,
		"error", err.Error(),
	)
	f.state.Fail(PhaseScenarioRunning, err)
}

func (f *Filter) traceEvent(kind vm.EventKind, deliveredOn string, thread vm.Ref, matched bool, count int64) {
	if !f.logger.Enabled(logging.LevelDebug) {
		return
	}
	if f.trace != nil && !f.trace.Match(deliveredOn) {
		return
	}
	threadName := ""
	if info, err := f.rt.ThreadInfo(thread); err == nil {
		threadName = info.Name
	}
	f.logger.WithEvent(kind.String()).Debug("monitor event",
		"delivered_on", deliveredOn,
		"thread", threadName,
		"matched", matched,
		"count", count,
	)
}
