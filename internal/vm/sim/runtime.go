// Package sim is an in-process host runtime implementing vm.Runtime.
//
// It models just enough of a managed runtime to exercise a contention
// observer end to end: named threads backed by goroutines, objects of
// classes with instance fields, per-object monitors whose contended entry
// delivers the two monitor events on the contending thread, and handles
// that alias (every call returns a fresh handle value, so only
// IsSameObject identifies entities).
//
// Faults can be injected with Option values to drive the observer's
// failure paths.
package sim

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Faults selects runtime calls that misbehave.
type Faults struct {
	// AllThreadsErr is returned by AllThreads.
	AllThreadsErr error
	// NilThreadList makes AllThreads report a positive count with no handles.
	NilThreadList bool
	// EmptyThreadList makes AllThreads report zero threads.
	EmptyThreadList bool
	// SetCallbacksErr is returned by SetEventCallbacks.
	SetCallbacksErr error
	// SetAgentProcErr is returned by SetAgentProc.
	SetAgentProcErr error
	// NewGlobalRefErr is returned by NewGlobalRef.
	NewGlobalRefErr error
	// AddCapabilitiesErr is returned by AddCapabilities.
	AddCapabilitiesErr error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithPotentialCapabilities sets the capabilities the runtime can grant.
func WithPotentialCapabilities(caps vm.Capabilities) Option {
	return func(r *Runtime) { r.potential = caps }
}

// WithFaults injects failures into runtime calls.
func WithFaults(f Faults) Option {
	return func(r *Runtime) { r.faults = f }
}

// WithSystemThreads sets the names of the background threads present from
// start-up. They take part in enumeration but never run workload code.
func WithSystemThreads(names ...string) Option {
	return func(r *Runtime) { r.systemThreads = names }
}

// DefaultPotentialCapabilities returns every monitor capability.
func DefaultPotentialCapabilities() vm.Capabilities {
	return vm.Capabilities{
		CanGenerateMonitorEvents:      true,
		CanGetMonitorInfo:             true,
		CanGetCurrentContendedMonitor: true,
		CanGetOwnedMonitorInfo:        true,
	}
}

// Runtime is a simulated host runtime. It is safe for concurrent use.
type Runtime struct {
	mu sync.Mutex

	potential vm.Capabilities
	granted   vm.Capabilities
	faults    Faults

	callbacks vm.Callbacks
	enabled   map[vm.EventKind]bool
	delivered map[vm.EventKind]*atomic.Int64

	// dispatch is held for reading while a callback runs and for writing
	// while notification modes change, so a disable returns only after
	// in-flight callbacks have finished.
	dispatch sync.RWMutex

	agentProc vm.AgentProc
	agentDone chan struct{}
	started   bool

	systemThreads []string
	threads       []*Thread
	main          *Thread
	nextID        atomic.Uint64

	globals     map[*handle]struct{}
	frameLocals []*handle
	snapshots   map[*vm.ThreadList]struct{}

	threadClass *Class
}

// New creates a Runtime with a live main thread and the configured system threads.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		potential:     DefaultPotentialCapabilities(),
		enabled:       make(map[vm.EventKind]bool),
		delivered:     make(map[vm.EventKind]*atomic.Int64),
		globals:       make(map[*handle]struct{}),
		snapshots:     make(map[*vm.ThreadList]struct{}),
		systemThreads: []string{"Reference Handler", "Finalizer", "Signal Dispatcher"},
		threadClass:   NewClass("Thread", nil, nil),
	}
	for _, kind := range vm.MonitorEventKinds() {
		r.delivered[kind] = &atomic.Int64{}
	}
	for _, opt := range opts {
		opt(r)
	}

	r.main = r.NewThread("main", r.threadClass)
	for _, name := range r.systemThreads {
		t := r.NewThread(name, r.threadClass)
		t.daemon = true
	}
	return r
}

// ThreadClass returns the base class of every thread object.
func (r *Runtime) ThreadClass() *Class {
	return r.threadClass
}

// Main returns the runtime's main thread.
func (r *Runtime) Main() *Thread {
	return r.main
}

// PotentialCapabilities returns the capabilities this runtime can grant.
func (r *Runtime) PotentialCapabilities() (vm.Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.potential, nil
}

// AddCapabilities grants caps. Requesting a capability outside the
// potential set fails with vm.ErrNotAvailable and grants nothing.
func (r *Runtime) AddCapabilities(caps vm.Capabilities) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.faults.AddCapabilitiesErr != nil {
		return r.faults.AddCapabilitiesErr
	}
	if !caps.Subset(r.potential) {
		return vm.ErrNotAvailable
	}
	r.granted = r.granted.Union(caps)
	return nil
}

// Capabilities returns the currently granted capabilities.
func (r *Runtime) Capabilities() (vm.Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.granted, nil
}

// SetEventCallbacks replaces the callback table.
func (r *Runtime) SetEventCallbacks(cb vm.Callbacks) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.faults.SetCallbacksErr != nil {
		return r.faults.SetCallbacksErr
	}
	r.callbacks = cb
	return nil
}

// SetEventNotificationMode enables or disables delivery of kind. Monitor
// events require the CanGenerateMonitorEvents capability. A disable
// returns only after every callback already running has returned.
func (r *Runtime) SetEventNotificationMode(enable bool, kind vm.EventKind) error {
	if kind != vm.MonitorContendedEnter && kind != vm.MonitorContendedEntered {
		return vm.ErrInvalidEventType
	}

	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if enable && !r.granted.CanGenerateMonitorEvents {
		return vm.ErrNotAvailable
	}
	r.enabled[kind] = enable
	return nil
}

// Enabled reports whether notifications for kind are enabled.
func (r *Runtime) Enabled(kind vm.EventKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[kind]
}

// Delivered returns how many callbacks of kind have been invoked.
func (r *Runtime) Delivered(kind vm.EventKind) int64 {
	if c, ok := r.delivered[kind]; ok {
		return c.Load()
	}
	return 0
}

// SetAgentProc registers the agent thread body. It runs when Start is called.
func (r *Runtime) SetAgentProc(proc vm.AgentProc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.faults.SetAgentProcErr != nil {
		return r.faults.SetAgentProcErr
	}
	if r.started {
		return vm.ErrWrongPhase
	}
	if proc == nil {
		return vm.ErrIllegalArgument
	}
	r.agentProc = proc
	return nil
}

// Start signals that the runtime is ready and launches the agent thread,
// if one was registered. It may be called once.
func (r *Runtime) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return vm.ErrWrongPhase
	}
	r.started = true
	r.agentDone = make(chan struct{})
	proc := r.agentProc
	r.mu.Unlock()

	agent := r.NewThread("Agent Thread", r.threadClass)
	agent.daemon = true

	go func() {
		defer close(r.agentDone)
		defer agent.Terminate()
		defer r.popFrame()
		if proc != nil {
			proc(agent.env)
		}
	}()
	return nil
}

// AgentDone is closed when the agent thread returns. It is nil before Start.
func (r *Runtime) AgentDone() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentDone
}

// post delivers a monitor event on the calling thread if it is enabled.
func (r *Runtime) post(kind vm.EventKind, t *Thread, obj *Object) {
	r.dispatch.RLock()
	defer r.dispatch.RUnlock()

	r.mu.Lock()
	enabled := r.enabled[kind]
	var handler vm.EventHandler
	switch kind {
	case vm.MonitorContendedEnter:
		handler = r.callbacks.MonitorContendedEnter
	case vm.MonitorContendedEntered:
		handler = r.callbacks.MonitorContendedEntered
	}
	r.mu.Unlock()

	if !enabled || handler == nil {
		return
	}

	// Event handles are local to the callback and die with it.
	thread := newHandle(t.obj, vm.Local)
	object := newHandle(obj, vm.Local)
	defer thread.release()
	defer object.release()

	r.delivered[kind].Add(1)
	handler(t.env, thread, object)
}
