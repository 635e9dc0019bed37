package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// ErrIllegalMonitorState is returned when a thread exits a monitor it does not own.
var ErrIllegalMonitorState = errors.New("illegal monitor state")

// Monitor is the reentrant mutual-exclusion lock attached to an object.
// Entering a monitor owned by another thread delivers
// MonitorContendedEnter before blocking and MonitorContendedEntered after
// acquiring, both on the entering thread.
type Monitor struct {
	obj *Object

	mu         sync.Mutex
	cond       *sync.Cond
	owner      *Thread
	recursions int
	waiters    int
}

func newMonitor(obj *Object) *Monitor {
	m := &Monitor{obj: obj}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enter acquires the monitor for t, blocking while another thread owns it.
func (m *Monitor) Enter(t *Thread) {
	m.mu.Lock()
	if m.owner == nil || m.owner == t {
		m.owner = t
		m.recursions++
		m.mu.Unlock()
		return
	}
	m.waiters++
	m.mu.Unlock()

	rt := m.obj.rt
	rt.post(vm.MonitorContendedEnter, t, m.obj)

	t.blockedOn.Store(m.obj)
	m.mu.Lock()
	for m.owner != nil {
		m.cond.Wait()
	}
	m.owner = t
	m.recursions = 1
	m.waiters--
	m.mu.Unlock()
	t.blockedOn.Store(nil)

	rt.post(vm.MonitorContendedEntered, t, m.obj)
}

// Exit releases one level of ownership held by t.
func (m *Monitor) Exit(t *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner != t {
		return ErrIllegalMonitorState
	}
	m.recursions--
	if m.recursions == 0 {
		m.owner = nil
		m.cond.Broadcast()
	}
	return nil
}

// Owner returns the owning thread, or nil.
func (m *Monitor) Owner() *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Waiters returns the number of threads blocked entering the monitor.
func (m *Monitor) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters
}

// AwaitBlocked waits until t is blocked entering this monitor or ctx ends.
func (m *Monitor) AwaitBlocked(ctx context.Context, t *Thread) error {
	for {
		if t.BlockedOn() == m.obj {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
