package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Thread is a simulated runtime thread. Its companion object carries the
// thread's fields; handles to a thread refer to that object.
type Thread struct {
	rt     *Runtime
	obj    *Object
	name   string
	daemon bool
	env    *env

	alive     atomic.Bool
	blockedOn atomic.Pointer[Object]
}

type env struct {
	thread *Thread
}

func (e *env) ThreadName() string { return e.thread.name }

// NewThread creates a live thread whose companion object is of class c.
// c should be ThreadClass or a subclass of it.
func (r *Runtime) NewThread(name string, c *Class) *Thread {
	t := &Thread{
		rt:   r,
		obj:  r.NewObject(c),
		name: name,
	}
	t.env = &env{thread: t}
	t.alive.Store(true)

	r.mu.Lock()
	r.threads = append(r.threads, t)
	r.mu.Unlock()
	return t
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Object returns the thread's companion object.
func (t *Thread) Object() *Object { return t.obj }

// Alive reports whether the thread has not terminated.
func (t *Thread) Alive() bool { return t.alive.Load() }

// BlockedOn returns the object whose monitor the thread is blocked
// entering, or nil.
func (t *Thread) BlockedOn() *Object { return t.blockedOn.Load() }

// Terminate marks the thread dead; it disappears from later enumerations.
func (t *Thread) Terminate() {
	if !t.alive.CompareAndSwap(true, false) {
		return
	}
	r := t.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, other := range r.threads {
		if other == t {
			r.threads = append(r.threads[:i], r.threads[i+1:]...)
			break
		}
	}
}

// String identifies the thread for diagnostics.
func (t *Thread) String() string {
	return fmt.Sprintf("%q (%s)", t.name, t.obj)
}

// AllThreads returns a snapshot of live threads. The list must be
// returned with Deallocate.
func (r *Runtime) AllThreads() (*vm.ThreadList, error) {
	if r.faults.AllThreadsErr != nil {
		return nil, r.faults.AllThreadsErr
	}

	r.mu.Lock()
	live := make([]*Thread, len(r.threads))
	copy(live, r.threads)
	r.mu.Unlock()

	list := &vm.ThreadList{Count: len(live)}
	switch {
	case r.faults.EmptyThreadList:
		list.Count = 0
	case r.faults.NilThreadList:
		// positive count, no buffer
	default:
		list.Threads = make([]vm.Ref, 0, len(live))
		for _, t := range live {
			list.Threads = append(list.Threads, r.local(t.obj))
		}
	}

	r.mu.Lock()
	r.snapshots[list] = struct{}{}
	r.mu.Unlock()
	return list, nil
}

// Deallocate returns a thread list to the runtime.
func (r *Runtime) Deallocate(list *vm.ThreadList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snapshots[list]; !ok {
		return vm.ErrIllegalArgument
	}
	delete(r.snapshots, list)
	return nil
}

// OutstandingSnapshots returns how many thread lists have not been deallocated.
func (r *Runtime) OutstandingSnapshots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

// ThreadInfo describes the thread behind ref.
func (r *Runtime) ThreadInfo(ref vm.Ref) (vm.ThreadInfo, error) {
	obj, err := resolve(ref)
	if err != nil {
		return vm.ThreadInfo{}, vm.ErrInvalidThread
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		if t.obj == obj {
			return vm.ThreadInfo{Name: t.name, Priority: 5, Daemon: t.daemon}, nil
		}
	}
	return vm.ThreadInfo{}, vm.ErrInvalidThread
}
