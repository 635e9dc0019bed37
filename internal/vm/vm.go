// Package vm defines the surface of a managed host runtime that an observer
// agent needs in order to watch monitor contention: capability negotiation,
// event callbacks and notification modes, thread enumeration, field reads,
// reference promotion and the same-identity predicate.
//
// Handles ([Ref]) are opaque. The same thread or object may be exposed
// through different handle values at different call sites, so handles must
// never be compared with ==. Use [Runtime.IsSameObject].
package vm

import (
	"errors"
	"fmt"
)

// Ref is an opaque handle to a runtime thread, object or class.
type Ref interface {
	// Scope reports how long the handle stays valid.
	Scope() RefScope
}

// RefScope describes the validity of a handle.
type RefScope int

const (
	// Local handles are valid only for the duration of the call that produced them.
	Local RefScope = iota
	// Global handles stay valid until explicitly deleted.
	Global
)

func (s RefScope) String() string {
	if s == Global {
		return "global"
	}
	return "local"
}

// FieldID identifies an instance field of a class.
type FieldID interface {
	Name() string
	Signature() string
}

// ObjectSignature is the declared type of a field holding an arbitrary object.
const ObjectSignature = "Ljava/lang/Object;"

// EventKind identifies a runtime event.
type EventKind int

const (
	// MonitorContendedEnter fires when a thread blocks entering a monitor held by another thread.
	MonitorContendedEnter EventKind = iota + 1
	// MonitorContendedEntered fires when a thread acquires a monitor after blocking on it.
	MonitorContendedEntered
)

// String returns the snake_case name of the event kind.
func (k EventKind) String() string {
	switch k {
	case MonitorContendedEnter:
		return "monitor_contended_enter"
	case MonitorContendedEntered:
		return "monitor_contended_entered"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// MonitorEventKinds returns both monitor contention event kinds.
func MonitorEventKinds() []EventKind {
	return []EventKind{MonitorContendedEnter, MonitorContendedEntered}
}

// Capabilities is the set of monitor-related features a runtime can grant.
type Capabilities struct {
	CanGenerateMonitorEvents      bool `json:"can_generate_monitor_events" yaml:"can_generate_monitor_events"`
	CanGetMonitorInfo             bool `json:"can_get_monitor_info" yaml:"can_get_monitor_info"`
	CanGetCurrentContendedMonitor bool `json:"can_get_current_contended_monitor" yaml:"can_get_current_contended_monitor"`
	CanGetOwnedMonitorInfo        bool `json:"can_get_owned_monitor_info" yaml:"can_get_owned_monitor_info"`
}

// Union returns the capabilities present in either c or o.
func (c Capabilities) Union(o Capabilities) Capabilities {
	return Capabilities{
		CanGenerateMonitorEvents:      c.CanGenerateMonitorEvents || o.CanGenerateMonitorEvents,
		CanGetMonitorInfo:             c.CanGetMonitorInfo || o.CanGetMonitorInfo,
		CanGetCurrentContendedMonitor: c.CanGetCurrentContendedMonitor || o.CanGetCurrentContendedMonitor,
		CanGetOwnedMonitorInfo:        c.CanGetOwnedMonitorInfo || o.CanGetOwnedMonitorInfo,
	}
}

// Subset reports whether every capability in c is also in o.
func (c Capabilities) Subset(o Capabilities) bool {
	return c.Union(o) == o
}

// Env is the per-thread environment a runtime passes to event callbacks.
type Env interface {
	// ThreadName returns the name of the runtime thread delivering the event.
	ThreadName() string
}

// EventHandler receives one monitor event.
type EventHandler func(env Env, thread, object Ref)

// Callbacks is the runtime's event callback table. Nil entries are unbound.
type Callbacks struct {
	MonitorContendedEnter   EventHandler
	MonitorContendedEntered EventHandler
}

// AgentProc is the body of the agent thread started by the runtime.
type AgentProc func(env Env)

// ThreadInfo describes a live thread.
type ThreadInfo struct {
	Name     string
	Priority int
	Daemon   bool
}

// ThreadList is a snapshot of live threads. Its buffer belongs to the
// runtime and must be returned with Runtime.Deallocate.
type ThreadList struct {
	Count   int
	Threads []Ref
}

// Runtime is the host runtime surface used by the observer.
type Runtime interface {
	PotentialCapabilities() (Capabilities, error)
	AddCapabilities(caps Capabilities) error
	Capabilities() (Capabilities, error)

	SetEventCallbacks(cb Callbacks) error
	SetEventNotificationMode(enable bool, kind EventKind) error
	SetAgentProc(proc AgentProc) error

	AllThreads() (*ThreadList, error)
	Deallocate(list *ThreadList) error
	ThreadInfo(thread Ref) (ThreadInfo, error)

	GetObjectClass(object Ref) (Ref, error)
	GetFieldID(class Ref, name, signature string) (FieldID, error)
	GetObjectField(object Ref, field FieldID) (Ref, error)

	NewGlobalRef(ref Ref) (Ref, error)
	DeleteGlobalRef(ref Ref) error
	IsSameObject(a, b Ref) bool
}

// Errors returned by runtime implementations.
var (
	ErrNotAvailable     = errors.New("capability not possessed")
	ErrInvalidThread    = errors.New("invalid thread")
	ErrInvalidObject    = errors.New("invalid object")
	ErrInvalidClass     = errors.New("invalid class")
	ErrNoSuchField      = errors.New("no such field")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrWrongPhase       = errors.New("wrong phase")
	ErrIllegalArgument  = errors.New("illegal argument")
)
