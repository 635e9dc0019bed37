// Package syncpoint implements the two-party rendezvous used to step a
// workload and an observer through a scenario together.
//
// The workload calls [Point.Checkpoint] when it reaches a synchronization
// point and stays parked there. The observer calls [Point.WaitForSync] to
// wait for that arrival, does its work, and calls [Point.ResumeSync] to let
// the workload continue. Either side can give up: WaitForSync has a
// deadline, Checkpoint honors its context, and [Point.Abort] releases a
// parked workload for good.
package syncpoint

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAborted is returned by Checkpoint after the observer aborted the run.
var ErrAborted = errors.New("syncpoint: aborted")

// Point is a reusable two-phase rendezvous. It is safe for concurrent use
// by one workload goroutine and one observer goroutine.
type Point struct {
	arrived chan struct{}
	resume  chan struct{}
	aborted chan struct{}

	mu        sync.Mutex
	pending   bool // observer has seen an arrival it has not resumed yet
	arrivals  int
	abortOnce sync.Once
}

// New creates a Point.
func New() *Point {
	return &Point{
		arrived: make(chan struct{}, 1),
		resume:  make(chan struct{}, 1),
		aborted: make(chan struct{}),
	}
}

// Checkpoint announces that the workload reached a synchronization point
// and blocks until the observer resumes it, ctx ends, or the point is aborted.
func (p *Point) Checkpoint(ctx context.Context) error {
	select {
	case <-p.aborted:
		return ErrAborted
	default:
	}

	select {
	case p.arrived <- struct{}{}:
	case <-p.aborted:
		return ErrAborted
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-p.resume:
		return nil
	case <-p.aborted:
		return ErrAborted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForSync waits up to timeout for the workload to arrive at its next
// checkpoint. It returns false on timeout or after Abort. A non-positive
// timeout waits indefinitely.
func (p *Point) WaitForSync(timeout time.Duration) bool {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-p.arrived:
		p.mu.Lock()
		p.pending = true
		p.arrivals++
		p.mu.Unlock()
		return true
	case <-p.aborted:
		return false
	case <-deadline:
		return false
	}
}

// ResumeSync releases the workload parked at the checkpoint last returned
// by WaitForSync. It returns false if there is no such workload.
func (p *Point) ResumeSync() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pending {
		return false
	}
	select {
	case <-p.aborted:
		return false
	default:
	}
	p.pending = false
	select {
	case p.resume <- struct{}{}:
		return true
	default:
		// A previous resume was never consumed; the workload left.
		return false
	}
}

// Abort releases a parked workload and fails every later Checkpoint,
// WaitForSync and ResumeSync. It is idempotent.
func (p *Point) Abort() {
	p.abortOnce.Do(func() { close(p.aborted) })
}

// Aborted reports whether Abort was called.
func (p *Point) Aborted() bool {
	select {
	case <-p.aborted:
		return true
	default:
		return false
	}
}

// Arrivals returns how many checkpoint arrivals the observer has consumed.
func (p *Point) Arrivals() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arrivals
}
