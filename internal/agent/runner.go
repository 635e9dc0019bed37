package agent

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/event"
)

// Host is the runtime lifecycle the Runner drives. Start launches the
// registered agent thread.
type Host interface {
	Start() error
}

// Workload is the instrumented program whose contention is observed. Run
// must pass the two barrier checkpoints and return when the scenario is over.
type Workload interface {
	Run(ctx context.Context) error
}

// Result summarizes one run.
type Result struct {
	EventCount  int64
	Phase       Phase
	Err         error
	Transitions []Transition
	Negotiation Negotiation
	Duration    time.Duration
}

// Passed reports whether the run's failure flag stayed clear.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Runner executes one observed run: it initializes the agent, starts the
// runtime and runs the workload alongside the agent thread.
type Runner struct {
	agent    *Agent
	host     Host
	workload Workload
}

// NewRunner creates a Runner.
func NewRunner(a *Agent, host Host, w Workload) *Runner {
	return &Runner{agent: a, host: host, workload: w}
}

// Run performs the run and reports its outcome. The returned Result
// carries the failure flag; Run itself never fails.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	a := r.agent
	barrier := a.coordinator.barrier

	if err := a.Initialize(); err != nil {
		return r.result(start)
	}
	if err := r.host.Start(); err != nil {
		_ = a.coordinator.abort(errors.NewHarnessError(errors.ErrRuntime, "start runtime").
			WithPhase(PhaseIdle.String()).
			WithCause(err))
		return r.result(start)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := r.workload.Run(gctx)
		if err != nil && !barrier.Aborted() {
			a.Fail(errors.Wrap(err, "workload"))
			barrier.Abort()
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-a.Done():
			return nil
		case <-gctx.Done():
			barrier.Abort()
			<-a.Done()
			return gctx.Err()
		}
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		a.Fail(errors.Wrap(err, "run cancelled"))
	}
	if err := a.Teardown(); err != nil {
		a.Fail(err)
	}
	if err := a.Close(); err != nil {
		a.logger.Warn("failed to release target references", "error", err.Error())
	}
	return r.result(start)
}

func (r *Runner) result(start time.Time) Result {
	a := r.agent
	res := Result{
		EventCount:  a.EventCount(),
		Phase:       a.Phase(),
		Err:         a.Err(),
		Transitions: a.Transitions(),
		Negotiation: a.Negotiation(),
		Duration:    time.Since(start),
	}
	if a.bus != nil {
		a.bus.Publish(event.NewRunCompletedEvent(res.Passed(), res.EventCount, res.Duration))
	}
	return res
}
