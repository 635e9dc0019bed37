// Package testutil provides testing utilities for contendwatch tests.
package testutil

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/syncpoint"
	"github.com/Iron-Ham/contendwatch/internal/vm"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
	"github.com/Iron-Ham/contendwatch/internal/workload"
)

// Names used by the default scenario.
const (
	ThreadName = "Debuggee Thread"
	FieldName  = "endingMonitor"
)

// WorkloadConfig returns a fast contending workload with one distractor.
func WorkloadConfig() workload.Config {
	return workload.Config{
		ThreadName:   ThreadName,
		FieldName:    FieldName,
		Mode:         workload.ModeContend,
		HoldDuration: 10 * time.Millisecond,
		Distractors:  1,
	}
}

// Scenario is a simulated runtime populated with a workload.
type Scenario struct {
	Runtime  *sim.Runtime
	Point    *syncpoint.Point
	Workload *workload.Workload
}

// NewScenario creates a runtime with opts and builds the workload in it.
func NewScenario(t *testing.T, cfg workload.Config, opts ...sim.Option) *Scenario {
	t.Helper()

	rt := sim.New(opts...)
	point := syncpoint.New()
	w, err := workload.New(rt, point, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build workload: %v", err)
	}
	t.Cleanup(point.Abort)

	return &Scenario{Runtime: rt, Point: point, Workload: w}
}

// ModeCall is one recorded SetEventNotificationMode call.
type ModeCall struct {
	Enable bool
	Kind   vm.EventKind
}

// RecordingRuntime wraps a vm.Runtime and records notification mode changes.
type RecordingRuntime struct {
	vm.Runtime

	mu    sync.Mutex
	calls []ModeCall
}

// NewRecordingRuntime wraps rt.
func NewRecordingRuntime(rt vm.Runtime) *RecordingRuntime {
	return &RecordingRuntime{Runtime: rt}
}

// SetEventNotificationMode records the call and forwards it.
func (r *RecordingRuntime) SetEventNotificationMode(enable bool, kind vm.EventKind) error {
	r.mu.Lock()
	r.calls = append(r.calls, ModeCall{Enable: enable, Kind: kind})
	r.mu.Unlock()
	return r.Runtime.SetEventNotificationMode(enable, kind)
}

// Calls returns the recorded calls in order.
func (r *RecordingRuntime) Calls() []ModeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModeCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// Disables counts recorded disables of kind.
func (r *RecordingRuntime) Disables(kind vm.EventKind) int {
	n := 0
	for _, c := range r.Calls() {
		if !c.Enable && c.Kind == kind {
			n++
		}
	}
	return n
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// BufferLogger returns a DEBUG logger writing JSON lines to a buffer.
func BufferLogger() (*logging.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	return logging.NewWriterLogger(buf, logging.LevelDebug), buf
}
