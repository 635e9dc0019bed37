package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/vm"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
)

func noopProc(vm.Env) {}

func TestGate_Initialize(t *testing.T) {
	rt := sim.New()
	bus := event.NewBus()
	var negotiated *event.CapabilitiesNegotiatedEvent
	bus.Subscribe(event.TypeCapabilitiesNegotiated, func(e event.Event) {
		ce := e.(event.CapabilitiesNegotiatedEvent)
		negotiated = &ce
	})

	n, err := NewGate(rt, bus, nil).Initialize(vm.Callbacks{}, noopProc)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	want := sim.DefaultPotentialCapabilities()
	if diff := cmp.Diff(Negotiation{Potential: want, Granted: want}, n); diff != "" {
		t.Errorf("negotiation mismatch (-want +got):\n%s", diff)
	}
	if negotiated == nil || !negotiated.Granted["can_generate_monitor_events"] {
		t.Errorf("capabilities event = %+v", negotiated)
	}
}

func TestGate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     []sim.Option
		wantKind error
	}{
		{
			name: "monitor events unavailable",
			opts: []sim.Option{sim.WithPotentialCapabilities(vm.Capabilities{
				CanGetMonitorInfo:      true,
				CanGetOwnedMonitorInfo: true,
			})},
			wantKind: errors.ErrCapabilityUnavailable,
		},
		{
			name:     "add capabilities rejected",
			opts:     []sim.Option{sim.WithFaults(sim.Faults{AddCapabilitiesErr: vm.ErrNotAvailable})},
			wantKind: errors.ErrCapabilityUnavailable,
		},
		{
			name:     "callbacks rejected",
			opts:     []sim.Option{sim.WithFaults(sim.Faults{SetCallbacksErr: vm.ErrWrongPhase})},
			wantKind: errors.ErrRegistration,
		},
		{
			name:     "agent proc rejected",
			opts:     []sim.Option{sim.WithFaults(sim.Faults{SetAgentProcErr: vm.ErrWrongPhase})},
			wantKind: errors.ErrRegistration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := sim.New(tt.opts...)
			_, err := NewGate(rt, nil, nil).Initialize(vm.Callbacks{}, noopProc)
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("Initialize() error = %v, want %v", err, tt.wantKind)
			}
			if errors.GetSeverity(err) != errors.SeverityCritical {
				t.Errorf("severity = %v, want critical", errors.GetSeverity(err))
			}
		})
	}
}
