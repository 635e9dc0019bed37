// Package workload is the instrumented program a contention run observes.
//
// It creates a named debuggee thread whose class declares a monitor field,
// and drives it through two checkpoints. Between them the main thread holds
// the monitor while the debuggee blocks entering it, so the runtime
// delivers the contention events. Distractor threads contend on monitors of
// their own at the same time.
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/vm"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
)

// Mode selects what the debuggee thread does during the scenario.
type Mode string

const (
	// ModeContend makes the debuggee block on the monitor held by main.
	ModeContend Mode = "contend"
	// ModeNoAcquire leaves the debuggee idle; it never touches the monitor.
	ModeNoAcquire Mode = "no_acquire"
)

// ValidModes returns every workload mode.
func ValidModes() []Mode {
	return []Mode{ModeContend, ModeNoAcquire}
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeContend || m == ModeNoAcquire
}

// Checkpointer is the workload side of the rendezvous with the observer.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Config controls the scenario.
type Config struct {
	ThreadName   string
	FieldName    string
	Mode         Mode
	HoldDuration time.Duration
	Distractors  int
}

// distractor is a thread contending on a lock object of its own.
type distractor struct {
	thread *sim.Thread
	lock   *sim.Object
}

// Workload is a debuggee program running inside a simulated runtime.
type Workload struct {
	rt     *sim.Runtime
	sync   Checkpointer
	cfg    Config
	logger *logging.Logger

	debuggee    *sim.Thread
	monitor     *sim.Object
	distractors []distractor
}

// New builds the workload's threads and objects in rt. The debuggee thread
// is live from here on, so an observer enumerating threads will find it.
func New(rt *sim.Runtime, sync Checkpointer, cfg Config, logger *logging.Logger) (*Workload, error) {
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("workload: invalid mode %q", cfg.Mode)
	}
	if cfg.ThreadName == "" || cfg.FieldName == "" {
		return nil, fmt.Errorf("workload: thread and field name are required")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	objectClass := sim.NewClass("Object", nil, nil)
	debuggeeClass := sim.NewClass("DebuggeeThread", rt.ThreadClass(), map[string]string{
		cfg.FieldName: vm.ObjectSignature,
	})

	w := &Workload{
		rt:       rt,
		sync:     sync,
		cfg:      cfg,
		logger:   logger,
		debuggee: rt.NewThread(cfg.ThreadName, debuggeeClass),
		monitor:  rt.NewObject(objectClass),
	}
	if err := w.debuggee.Object().SetField(cfg.FieldName, w.monitor); err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}

	for i := range cfg.Distractors {
		w.distractors = append(w.distractors, distractor{
			thread: rt.NewThread(fmt.Sprintf("Distractor-%d", i), rt.ThreadClass()),
			lock:   rt.NewObject(objectClass),
		})
	}
	return w, nil
}

// Debuggee returns the named thread.
func (w *Workload) Debuggee() *sim.Thread { return w.debuggee }

// Monitor returns the object stored in the debuggee's monitor field.
func (w *Workload) Monitor() *sim.Object { return w.monitor }

// Run waits at the setup checkpoint, runs the contention scenario and waits
// at the completion checkpoint.
func (w *Workload) Run(ctx context.Context) error {
	defer w.terminate()

	w.logger.Debug("workload at setup checkpoint")
	if err := w.sync.Checkpoint(ctx); err != nil {
		return fmt.Errorf("setup checkpoint: %w", err)
	}

	if err := w.contend(ctx); err != nil {
		return err
	}

	w.logger.Debug("workload at completion checkpoint")
	if err := w.sync.Checkpoint(ctx); err != nil {
		return fmt.Errorf("completion checkpoint: %w", err)
	}
	return nil
}

// contend holds every lock on main and lets the contenders block on them
// for the hold duration before releasing.
func (w *Workload) contend(ctx context.Context) (err error) {
	main := w.rt.Main()

	w.monitor.Monitor().Enter(main)
	for _, d := range w.distractors {
		d.lock.Monitor().Enter(main)
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_ = w.monitor.Monitor().Exit(main)
		for _, d := range w.distractors {
			_ = d.lock.Monitor().Exit(main)
		}
	}

	var wg conc.WaitGroup
	defer func() {
		release()
		if r := wg.WaitAndRecover(); r != nil && err == nil {
			err = fmt.Errorf("workload thread panicked: %w", r.AsError())
		}
	}()

	for _, d := range w.distractors {
		wg.Go(func() { enterAndExit(d.lock.Monitor(), d.thread) })
	}
	if w.cfg.Mode == ModeContend {
		wg.Go(func() { enterAndExit(w.monitor.Monitor(), w.debuggee) })
	}

	for _, d := range w.distractors {
		if err := d.lock.Monitor().AwaitBlocked(ctx, d.thread); err != nil {
			return fmt.Errorf("distractor %s: %w", d.thread.Name(), err)
		}
	}
	if w.cfg.Mode == ModeContend {
		if err := w.monitor.Monitor().AwaitBlocked(ctx, w.debuggee); err != nil {
			return fmt.Errorf("debuggee: %w", err)
		}
		w.logger.Debug("debuggee blocked", "monitor", w.monitor.String())
	}

	timer := time.NewTimer(w.cfg.HoldDuration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func enterAndExit(m *sim.Monitor, t *sim.Thread) {
	m.Enter(t)
	if err := m.Exit(t); err != nil {
		panic(err)
	}
}

func (w *Workload) terminate() {
	w.debuggee.Terminate()
	for _, d := range w.distractors {
		d.thread.Terminate()
	}
}
