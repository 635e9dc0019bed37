package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeCapabilitiesNegotiated = "gate.capabilities_negotiated"
	TypeTargetResolved         = "resolver.target_resolved"
	TypePhaseChanged           = "coordinator.phase_changed"
	TypeMonitorEvent           = "filter.monitor_event"
	TypeFailureRecorded        = "run.failure_recorded"
	TypeRunCompleted           = "run.completed"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// CapabilitiesNegotiatedEvent is emitted once the gate has requested and
// re-read the runtime's monitor capabilities.
type CapabilitiesNegotiatedEvent struct {
	baseEvent
	Potential map[string]bool
	Granted   map[string]bool
}

// NewCapabilitiesNegotiatedEvent creates a CapabilitiesNegotiatedEvent.
func NewCapabilitiesNegotiatedEvent(potential, granted map[string]bool) CapabilitiesNegotiatedEvent {
	return CapabilitiesNegotiatedEvent{
		baseEvent: newBaseEvent(TypeCapabilitiesNegotiated),
		Potential: potential,
		Granted:   granted,
	}
}

// TargetResolvedEvent is emitted when the resolver has promoted the target
// thread and monitor object.
type TargetResolvedEvent struct {
	baseEvent
	ThreadName    string
	FieldName     string
	ThreadsListed int
}

// NewTargetResolvedEvent creates a TargetResolvedEvent.
func NewTargetResolvedEvent(threadName, fieldName string, listed int) TargetResolvedEvent {
	return TargetResolvedEvent{
		baseEvent:     newBaseEvent(TypeTargetResolved),
		ThreadName:    threadName,
		FieldName:     fieldName,
		ThreadsListed: listed,
	}
}

// PhaseChangedEvent is emitted on every coordinator state transition.
type PhaseChangedEvent struct {
	baseEvent
	From   string
	To     string
	Reason string
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(from, to, reason string) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent: newBaseEvent(TypePhaseChanged),
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// MonitorEvent is emitted for every monitor event the filter classifies.
type MonitorEvent struct {
	baseEvent
	Kind        string // runtime event kind
	DeliveredOn string // name of the runtime thread that delivered it
	Matched     bool   // thread and object both matched the target
	Count       int64  // counter value after this event
}

// NewMonitorEvent creates a MonitorEvent.
func NewMonitorEvent(kind, deliveredOn string, matched bool, count int64) MonitorEvent {
	return MonitorEvent{
		baseEvent:   newBaseEvent(TypeMonitorEvent),
		Kind:        kind,
		DeliveredOn: deliveredOn,
		Matched:     matched,
		Count:       count,
	}
}

// FailureRecordedEvent is emitted each time the run's failure flag is set.
type FailureRecordedEvent struct {
	baseEvent
	Phase string
	Err   error
}

// NewFailureRecordedEvent creates a FailureRecordedEvent.
func NewFailureRecordedEvent(phase string, err error) FailureRecordedEvent {
	return FailureRecordedEvent{
		baseEvent: newBaseEvent(TypeFailureRecorded),
		Phase:     phase,
		Err:       err,
	}
}

// RunCompletedEvent is emitted when the coordinator reaches a terminal phase.
type RunCompletedEvent struct {
	baseEvent
	Passed     bool
	EventCount int64
	Duration   time.Duration
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(passed bool, count int64, duration time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent:  newBaseEvent(TypeRunCompleted),
		Passed:     passed,
		EventCount: count,
		Duration:   duration,
	}
}
