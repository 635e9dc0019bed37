package agent

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Target is the resolved (thread, object) pair that counted events must match.
// Both handles are global references.
type Target struct {
	Thread     vm.Ref
	Object     vm.Ref
	ThreadName string
	FieldName  string
	// Listed is the number of live threads in the snapshot the target was found in.
	Listed int
}

// State is the shared context of one run. The coordinator is its only
// writer of the target and the notification windows; event handlers read
// them concurrently and write only the counter and the failure flag.
type State struct {
	target  atomic.Pointer[Target]
	count   atomic.Int64
	windows map[vm.EventKind]*atomic.Bool

	mu      sync.Mutex
	failure error

	bus *event.Bus
}

// NewState creates the shared state of a run. bus may be nil.
func NewState(bus *event.Bus) *State {
	s := &State{
		windows: make(map[vm.EventKind]*atomic.Bool),
		bus:     bus,
	}
	for _, kind := range vm.MonitorEventKinds() {
		s.windows[kind] = &atomic.Bool{}
	}
	return s
}

// SetTarget installs the resolved target. Only the first call has an
// effect; it reports whether t was installed.
func (s *State) SetTarget(t *Target) bool {
	return s.target.CompareAndSwap(nil, t)
}

// Target returns the resolved target, or nil before resolution.
func (s *State) Target() *Target {
	return s.target.Load()
}

// ResetCount zeroes the event counter.
func (s *State) ResetCount() {
	s.count.Store(0)
}

// Increment adds one matching event and returns the new count.
func (s *State) Increment() int64 {
	return s.count.Add(1)
}

// EventCount returns the current event counter.
func (s *State) EventCount() int64 {
	return s.count.Load()
}

// OpenWindow marks kind as expected. It must be called before the runtime
// is asked to enable kind.
func (s *State) OpenWindow(kind vm.EventKind) {
	if w, ok := s.windows[kind]; ok {
		w.Store(true)
	}
}

// CloseWindow marks kind as unexpected. It must be called after the
// runtime has disabled kind.
func (s *State) CloseWindow(kind vm.EventKind) {
	if w, ok := s.windows[kind]; ok {
		w.Store(false)
	}
}

// InWindow reports whether events of kind are currently expected.
func (s *State) InWindow(kind vm.EventKind) bool {
	w, ok := s.windows[kind]
	return ok && w.Load()
}

// Fail sets the failure flag. The first error is kept first; later errors
// are joined after it. The flag is never cleared.
func (s *State) Fail(phase Phase, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	} else {
		s.failure = errors.Join(s.failure, err)
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event.NewFailureRecordedEvent(phase.String(), err))
	}
}

// Failed reports whether the failure flag is set.
func (s *State) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure != nil
}

// Err returns every recorded failure, or nil.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}
