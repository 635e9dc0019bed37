package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Iron-Ham/contendwatch/internal/syncpoint"
	"github.com/Iron-Ham/contendwatch/internal/vm"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
)

func testConfig(mode Mode) Config {
	return Config{
		ThreadName:   "Debuggee Thread",
		FieldName:    "endingMonitor",
		Mode:         mode,
		HoldDuration: 5 * time.Millisecond,
		Distractors:  2,
	}
}

// enableAll grants monitor enter events and returns a function that
// reports deliveries per thread name once the workload has finished.
func enableAll(t *testing.T, rt *sim.Runtime) func() map[string]int {
	t.Helper()
	ch := make(chan string, 64)
	record := func(env vm.Env, _, _ vm.Ref) { ch <- env.ThreadName() }

	if err := rt.AddCapabilities(sim.DefaultPotentialCapabilities()); err != nil {
		t.Fatalf("AddCapabilities() error = %v", err)
	}
	if err := rt.SetEventCallbacks(vm.Callbacks{MonitorContendedEnter: record}); err != nil {
		t.Fatalf("SetEventCallbacks() error = %v", err)
	}
	if err := rt.SetEventNotificationMode(true, vm.MonitorContendedEnter); err != nil {
		t.Fatalf("SetEventNotificationMode() error = %v", err)
	}
	return func() map[string]int {
		close(ch)
		seen := make(map[string]int)
		for name := range ch {
			seen[name]++
		}
		return seen
	}
}

// drive plays the observer side: resume both checkpoints.
func drive(t *testing.T, p *syncpoint.Point) {
	t.Helper()
	for i := range 2 {
		if !p.WaitForSync(5 * time.Second) {
			t.Fatalf("checkpoint %d not reached", i+1)
		}
		if !p.ResumeSync() {
			t.Fatalf("checkpoint %d not resumed", i+1)
		}
	}
}

func TestNew(t *testing.T) {
	rt := sim.New()
	w, err := New(rt, syncpoint.New(), testConfig(ModeContend), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.Debuggee().Name() != "Debuggee Thread" || !w.Debuggee().Alive() {
		t.Errorf("debuggee = %v", w.Debuggee())
	}
	ref := rt.Ref(w.Debuggee().Object())
	class, _ := rt.GetObjectClass(ref)
	field, err := rt.GetFieldID(class, "endingMonitor", vm.ObjectSignature)
	if err != nil {
		t.Fatalf("GetFieldID() error = %v", err)
	}
	value, err := rt.GetObjectField(ref, field)
	if err != nil || !rt.IsSameObject(value, rt.Ref(w.Monitor())) {
		t.Errorf("monitor field = %v, %v; want the workload monitor", value, err)
	}

	list, _ := rt.AllThreads()
	defer rt.Deallocate(list)
	// main, three system threads, debuggee, two distractors
	if list.Count != 7 {
		t.Errorf("thread count = %d, want 7", list.Count)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad mode", Config{ThreadName: "t", FieldName: "f", Mode: "spin"}},
		{"no thread name", Config{FieldName: "f", Mode: ModeContend}},
		{"no field name", Config{ThreadName: "t", Mode: ModeContend}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(sim.New(), syncpoint.New(), tt.cfg, nil); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestRun_Contend(t *testing.T) {
	rt := sim.New()
	p := syncpoint.New()
	w, err := New(rt, p, testConfig(ModeContend), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	collect := enableAll(t, rt)

	errs := make(chan error, 1)
	go func() { errs <- w.Run(context.Background()) }()
	drive(t, p)

	if err := <-errs; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	seen := collect()
	if seen["Debuggee Thread"] != 1 || seen["Distractor-0"] != 1 || seen["Distractor-1"] != 1 {
		t.Errorf("enter deliveries = %v", seen)
	}
	if w.Debuggee().Alive() {
		t.Error("debuggee should terminate after the scenario")
	}
	if w.Monitor().Monitor().Owner() != nil {
		t.Error("monitor still owned after the scenario")
	}
}

func TestRun_NoAcquire(t *testing.T) {
	rt := sim.New()
	p := syncpoint.New()
	w, _ := New(rt, p, testConfig(ModeNoAcquire), nil)
	collect := enableAll(t, rt)

	errs := make(chan error, 1)
	go func() { errs <- w.Run(context.Background()) }()
	drive(t, p)

	if err := <-errs; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if seen := collect(); seen["Debuggee Thread"] != 0 || seen["Distractor-0"] != 1 {
		t.Errorf("enter deliveries in no_acquire mode = %v", seen)
	}
}

func TestRun_Aborted(t *testing.T) {
	rt := sim.New()
	p := syncpoint.New()
	w, _ := New(rt, p, testConfig(ModeContend), nil)

	errs := make(chan error, 1)
	go func() { errs <- w.Run(context.Background()) }()
	if !p.WaitForSync(5 * time.Second) {
		t.Fatal("setup checkpoint not reached")
	}
	p.Abort()

	err := <-errs
	if !errors.Is(err, syncpoint.ErrAborted) {
		t.Errorf("Run() error = %v, want ErrAborted", err)
	}
	if rt.Main().Object().Monitor().Owner() != nil || w.Monitor().Monitor().Owner() != nil {
		t.Error("locks held after abort")
	}
}

func TestModes(t *testing.T) {
	for _, m := range ValidModes() {
		if !m.IsValid() {
			t.Errorf("%s.IsValid() = false", m)
		}
	}
	if Mode("").IsValid() {
		t.Error("empty mode should be invalid")
	}
}
