package agent

import (
	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Negotiation is the outcome of capability negotiation.
type Negotiation struct {
	Potential vm.Capabilities `json:"potential" yaml:"potential"`
	Granted   vm.Capabilities `json:"granted" yaml:"granted"`
}

// Gate negotiates capabilities and binds the callbacks and the agent proc.
// It runs once, before the workload does anything observable.
type Gate struct {
	rt     vm.Runtime
	bus    *event.Bus
	logger *logging.Logger
}

// NewGate creates a Gate.
func NewGate(rt vm.Runtime, bus *event.Bus, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Gate{rt: rt, bus: bus, logger: logger}
}

// Negotiate requests every potential capability and verifies that monitor
// events can be generated.
func (g *Gate) Negotiate() (Negotiation, error) {
	var n Negotiation

	potential, err := g.rt.PotentialCapabilities()
	if err != nil {
		return n, g.fail(errors.ErrCapabilityUnavailable, "query potential capabilities").WithCause(err)
	}
	n.Potential = potential

	if err := g.rt.AddCapabilities(potential); err != nil {
		return n, g.fail(errors.ErrCapabilityUnavailable, "add capabilities").WithCause(err)
	}

	granted, err := g.rt.Capabilities()
	if err != nil {
		return n, g.fail(errors.ErrCapabilityUnavailable, "query granted capabilities").WithCause(err)
	}
	n.Granted = granted

	g.logger.Info("capabilities negotiated",
		"potential", potential,
		"granted", granted,
	)
	if g.bus != nil {
		g.bus.Publish(event.NewCapabilitiesNegotiatedEvent(capabilityMap(potential), capabilityMap(granted)))
	}

	if !granted.CanGenerateMonitorEvents {
		return n, g.fail(errors.ErrCapabilityUnavailable, "runtime cannot generate monitor events").
			WithObserved("can_generate_monitor_events", false)
	}
	return n, nil
}

// Register binds the event callbacks and the agent thread body.
func (g *Gate) Register(cb vm.Callbacks, proc vm.AgentProc) error {
	if err := g.rt.SetEventCallbacks(cb); err != nil {
		return g.fail(errors.ErrRegistration, "set event callbacks").WithCause(err)
	}
	if err := g.rt.SetAgentProc(proc); err != nil {
		return g.fail(errors.ErrRegistration, "set agent proc").WithCause(err)
	}
	g.logger.Debug("callbacks and agent proc registered")
	return nil
}

// Initialize runs Negotiate then Register.
func (g *Gate) Initialize(cb vm.Callbacks, proc vm.AgentProc) (Negotiation, error) {
	n, err := g.Negotiate()
	if err != nil {
		return n, err
	}
	return n, g.Register(cb, proc)
}

func (g *Gate) fail(kind error, msg string) *errors.HarnessError {
	return errors.NewHarnessError(kind, msg).WithPhase(PhaseIdle.String())
}

func capabilityMap(c vm.Capabilities) map[string]bool {
	return map[string]bool{
		"can_generate_monitor_events":       c.CanGenerateMonitorEvents,
		"can_get_monitor_info":              c.CanGetMonitorInfo,
		"can_get_current_contended_monitor": c.CanGetCurrentContendedMonitor,
		"can_get_owned_monitor_info":        c.CanGetOwnedMonitorInfo,
	}
}
