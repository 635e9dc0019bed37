package agent

import (
	"sync"
	"time"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Defaults matching the workload's debuggee thread.
const (
	DefaultThreadName      = "Debuggee Thread"
	DefaultFieldName       = "endingMonitor"
	DefaultFieldSignature  = vm.ObjectSignature
	DefaultWaitTimeMinutes = 2
)

// WaitTimeout converts a wait time in minutes to a barrier timeout.
func WaitTimeout(minutes int) time.Duration {
	return time.Duration(minutes) * 60000 * time.Millisecond
}

// Config holds required dependencies and settings for creating an Agent.
type Config struct {
	Runtime vm.Runtime
	Barrier Barrier

	ThreadName     string
	FieldName      string
	FieldSignature string

	// WaitTimeout bounds each barrier wait. Zero uses DefaultWaitTimeMinutes.
	WaitTimeout time.Duration
	// DisableBothOnTeardown disables both monitor events at teardown
	// instead of only MonitorContendedEnter.
	DisableBothOnTeardown bool
	// TracePattern is a glob over delivering thread names limiting which
	// event deliveries are logged.
	TracePattern string
}

// Option configures optional Agent dependencies.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithBus sets the bus that receives the agent's events.
func WithBus(b *event.Bus) Option {
	return func(a *Agent) { a.bus = b }
}

// Agent observes monitor contention in a runtime. Initialize negotiates
// capabilities and registers the agent thread; the runtime then runs the
// coordinator on that thread.
type Agent struct {
	rt     vm.Runtime
	logger *logging.Logger
	bus    *event.Bus

	state       *State
	filter      *Filter
	gate        *Gate
	resolver    *Resolver
	coordinator *Coordinator

	mu          sync.Mutex
	initialized bool
	negotiation Negotiation
	done        chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// New creates an Agent.
func New(cfg Config, opts ...Option) (*Agent, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("agent: Runtime is required")
	}
	if cfg.Barrier == nil {
		return nil, errors.New("agent: Barrier is required")
	}
	if cfg.ThreadName == "" {
		cfg.ThreadName = DefaultThreadName
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}
	if cfg.FieldSignature == "" {
		cfg.FieldSignature = DefaultFieldSignature
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = WaitTimeout(DefaultWaitTimeMinutes)
	}

	a := &Agent{
		rt:   cfg.Runtime,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.NopLogger()
	}

	a.state = NewState(a.bus)
	filter, err := NewFilter(cfg.Runtime, a.state, a.bus, a.logger, cfg.TracePattern)
	if err != nil {
		return nil, err
	}
	a.filter = filter
	a.gate = NewGate(cfg.Runtime, a.bus, a.logger)
	a.resolver = NewResolver(cfg.Runtime, cfg.ThreadName, cfg.FieldName, cfg.FieldSignature, a.logger)
	a.coordinator = NewCoordinator(CoordinatorConfig{
		Runtime:     cfg.Runtime,
		Barrier:     cfg.Barrier,
		Resolver:    a.resolver,
		State:       a.state,
		Bus:         a.bus,
		Logger:      a.logger,
		Timeout:     cfg.WaitTimeout,
		DisableBoth: cfg.DisableBothOnTeardown,
	})
	return a, nil
}

// Initialize negotiates capabilities, binds the event callbacks and
// registers the coordinator as the runtime's agent thread. It must be
// called once, before the runtime starts. On failure the run is already
// over: the coordinator is in PhaseFailed and the barrier is aborted.
func (a *Agent) Initialize() error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return errors.New("agent: already initialized")
	}
	a.initialized = true
	a.mu.Unlock()

	n, err := a.gate.Initialize(a.filter.Callbacks(), a.proc)
	a.mu.Lock()
	a.negotiation = n
	a.mu.Unlock()
	if err != nil {
		a.logger.Error("agent initialization failed", "error", err.Error())
		return a.coordinator.abort(err)
	}
	return nil
}

// proc is the agent thread body.
func (a *Agent) proc(env vm.Env) {
	defer close(a.done)
	a.logger.Debug("agent thread started", "thread", env.ThreadName())
	if err := a.coordinator.Run(); err != nil {
		a.logger.Error("run failed", "error", err.Error(), "event_count", a.EventCount())
		return
	}
	a.logger.Info("run passed", "event_count", a.EventCount())
}

// Done is closed when the agent thread has finished the protocol.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// EventCount returns the number of matching contention events observed.
func (a *Agent) EventCount() int64 {
	return a.state.EventCount()
}

// Err returns the run's failure flag as an error, or nil.
func (a *Agent) Err() error {
	return a.state.Err()
}

// Fail records an external failure, such as a workload error, on the
// run's failure flag.
func (a *Agent) Fail(err error) {
	a.state.Fail(a.coordinator.Phase(), err)
}

// Phase returns the coordinator's current phase.
func (a *Agent) Phase() Phase {
	return a.coordinator.Phase()
}

// Transitions returns the coordinator's phase history.
func (a *Agent) Transitions() []Transition {
	return a.coordinator.History()
}

// Negotiation returns the capabilities negotiated by Initialize.
func (a *Agent) Negotiation() Negotiation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.negotiation
}

// Teardown disables notifications the coordinator left enabled.
func (a *Agent) Teardown() error {
	return a.coordinator.Teardown()
}

// Close releases the target's global references. Call it after the agent
// thread is done.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.resolver.Release(a.state.Target())
	})
	return a.closeErr
}
