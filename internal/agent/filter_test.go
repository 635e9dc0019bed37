package agent

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/testutil"
	"github.com/Iron-Ham/contendwatch/internal/vm"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
)

type fakeEnv string

func (e fakeEnv) ThreadName() string { return string(e) }

// filterFixture is a runtime with a resolved target and one distractor pair.
type filterFixture struct {
	rt         *sim.Runtime
	state      *State
	thread     *sim.Thread
	lock       *sim.Object
	distractor *sim.Thread
	otherLock  *sim.Object
}

func newFilterFixture(t *testing.T) *filterFixture {
	t.Helper()
	rt := sim.New()
	objectClass := sim.NewClass("Object", nil, nil)
	f := &filterFixture{
		rt:         rt,
		state:      NewState(nil),
		lock:       rt.NewObject(objectClass),
		otherLock:  rt.NewObject(objectClass),
		distractor: rt.NewThread("Distractor-0", rt.ThreadClass()),
	}
	f.thread = debuggee(t, rt, testutil.ThreadName, f.lock)

	target, err := NewResolver(rt, testutil.ThreadName, testutil.FieldName, vm.ObjectSignature, nil).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	f.state.SetTarget(target)
	return f
}

func (f *filterFixture) openWindows() {
	for _, kind := range vm.MonitorEventKinds() {
		f.state.OpenWindow(kind)
	}
}

func TestFilter_CountsOnlyMatchingPair(t *testing.T) {
	fx := newFilterFixture(t)
	fx.openWindows()
	filter, err := NewFilter(fx.rt, fx.state, nil, nil, "")
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	cb := filter.Callbacks()

	deliveries := []struct {
		name    string
		handler vm.EventHandler
		thread  *sim.Thread
		object  *sim.Object
		want    int64
	}{
		{"distractor thread, distractor object", cb.MonitorContendedEnter, fx.distractor, fx.otherLock, 0},
		{"distractor thread, target object", cb.MonitorContendedEnter, fx.distractor, fx.lock, 0},
		{"target thread, distractor object", cb.MonitorContendedEntered, fx.thread, fx.otherLock, 0},
		{"target enter", cb.MonitorContendedEnter, fx.thread, fx.lock, 1},
		{"target entered", cb.MonitorContendedEntered, fx.thread, fx.lock, 2},
		{"distractor after match", cb.MonitorContendedEntered, fx.distractor, fx.otherLock, 2},
	}

	for _, d := range deliveries {
		// Fresh handles on every delivery, as the runtime hands out.
		d.handler(fakeEnv(d.thread.Name()), fx.rt.Ref(d.thread.Object()), fx.rt.Ref(d.object))
		if got := fx.state.EventCount(); got != d.want {
			t.Errorf("after %s: EventCount() = %d, want %d", d.name, got, d.want)
		}
	}
	if fx.state.Failed() {
		t.Errorf("non-matching events must not fail the run: %v", fx.state.Err())
	}
}

func TestFilter_UnexpectedEvents(t *testing.T) {
	t.Run("before resolution", func(t *testing.T) {
		rt := sim.New()
		state := NewState(nil)
		filter, _ := NewFilter(rt, state, nil, nil, "")

		thread := rt.NewThread("worker", rt.ThreadClass())
		filter.Handle(vm.MonitorContendedEnter, fakeEnv("worker"), rt.Ref(thread.Object()), rt.Ref(thread.Object()))

		if !errors.Is(state.Err(), errors.ErrUnexpectedEvent) {
			t.Errorf("Err() = %v, want ErrUnexpectedEvent", state.Err())
		}
		if state.EventCount() != 0 {
			t.Errorf("EventCount() = %d, want 0", state.EventCount())
		}
	})

	t.Run("outside enable window", func(t *testing.T) {
		fx := newFilterFixture(t)
		fx.state.OpenWindow(vm.MonitorContendedEntered)
		filter, _ := NewFilter(fx.rt, fx.state, nil, nil, "")

		filter.Handle(vm.MonitorContendedEnter, fakeEnv(testutil.ThreadName), fx.rt.Ref(fx.thread.Object()), fx.rt.Ref(fx.lock))
		if !errors.Is(fx.state.Err(), errors.ErrUnexpectedEvent) {
			t.Errorf("Err() = %v, want ErrUnexpectedEvent", fx.state.Err())
		}
		if fx.state.EventCount() != 0 {
			t.Errorf("event outside window was counted")
		}
	})
}

func TestFilter_PublishesClassification(t *testing.T) {
	fx := newFilterFixture(t)
	fx.openWindows()
	bus := event.NewBus()

	type seen struct {
		Kind    string
		Matched bool
		Count   int64
	}
	var got []seen
	bus.Subscribe(event.TypeMonitorEvent, func(e event.Event) {
		me := e.(event.MonitorEvent)
		got = append(got, seen{me.Kind, me.Matched, me.Count})
	})

	filter, _ := NewFilter(fx.rt, fx.state, bus, nil, "")
	filter.Handle(vm.MonitorContendedEnter, fakeEnv("d"), fx.rt.Ref(fx.distractor.Object()), fx.rt.Ref(fx.otherLock))
	filter.Handle(vm.MonitorContendedEntered, fakeEnv("t"), fx.rt.Ref(fx.thread.Object()), fx.rt.Ref(fx.lock))

	want := []seen{
		{"monitor_contended_enter", false, 0},
		{"monitor_contended_entered", true, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("published events mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter_TracePattern(t *testing.T) {
	fx := newFilterFixture(t)
	fx.openWindows()
	logger, buf := testutil.BufferLogger()

	filter, err := NewFilter(fx.rt, fx.state, nil, logger, "Debuggee*")
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	filter.Handle(vm.MonitorContendedEnter, fakeEnv("Distractor-0"), fx.rt.Ref(fx.distractor.Object()), fx.rt.Ref(fx.otherLock))
	filter.Handle(vm.MonitorContendedEnter, fakeEnv(testutil.ThreadName), fx.rt.Ref(fx.thread.Object()), fx.rt.Ref(fx.lock))

	out := buf.String()
	if strings.Contains(out, "Distractor-0") {
		t.Errorf("delivery on a thread outside the pattern was logged:\n%s", out)
	}
	if !strings.Contains(out, `"delivered_on":"Debuggee Thread"`) {
		t.Errorf("delivery on the debuggee was not logged:\n%s", out)
	}
	if fx.state.EventCount() != 1 {
		t.Errorf("trace pattern must not affect counting: EventCount() = %d", fx.state.EventCount())
	}

	if _, err := NewFilter(fx.rt, fx.state, nil, nil, "[z-a]"); err == nil {
		t.Error("NewFilter() with malformed pattern should fail")
	}
}
