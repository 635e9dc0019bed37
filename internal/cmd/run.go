package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/contendwatch/internal/agent"
	"github.com/Iron-Ham/contendwatch/internal/config"
	"github.com/Iron-Ham/contendwatch/internal/event"
	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/report"
	"github.com/Iron-Ham/contendwatch/internal/syncpoint"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
	"github.com/Iron-Ham/contendwatch/internal/workload"
)

// ErrRunFailed is returned by the run command when the failure flag was set.
var ErrRunFailed = errors.New("run failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the contention scenario under observation",
	Long: `Run starts a simulated runtime, attaches the observer and drives the
instrumented workload through its two checkpoints.

Modes:
  contend     the named thread blocks on the monitor held in its field (expected to pass)
  no_acquire  only distractor threads contend (expected to fail)

The exit status is non-zero when the run fails.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runFormat string

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", string(report.FormatText), "output format: text, json, yaml")
	runCmd.Flags().String("mode", "", "workload mode: contend, no_acquire")
	runCmd.Flags().Int("distractors", 0, "number of distractor threads")
	runCmd.Flags().Duration("hold", 0, "how long the holder keeps the monitor once contenders block")
	runCmd.Flags().Duration("timeout", 0, "barrier wait timeout (overrides agent.wait_time_minutes)")
	runCmd.Flags().String("trace", "", "glob of thread names whose event deliveries are logged")
	_ = viper.BindPFlag("workload.mode", runCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("workload.distractors", runCmd.Flags().Lookup("distractors"))
	_ = viper.BindPFlag("workload.hold_duration", runCmd.Flags().Lookup("hold"))
	_ = viper.BindPFlag("agent.wait_timeout", runCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("trace.thread_pattern", runCmd.Flags().Lookup("trace"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(runFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()
	logger = logger.WithRun(strconv.FormatInt(time.Now().UnixNano(), 36))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := observe(ctx, cfg, logger)
	if err != nil {
		return err
	}

	r := report.FromResult(res)
	out := cmd.OutOrStdout()
	if err := report.Write(out, r, format, isTerminal(out)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !r.Passed {
		logger.Error(report.Summary(r), "error", r.Error)
		return ErrRunFailed
	}
	logger.Info(report.Summary(r), "event_count", r.EventCount)
	return nil
}

// observe builds a fresh runtime, workload and agent from cfg and runs them
// to completion.
func observe(ctx context.Context, cfg *config.Config, logger *logging.Logger) (agent.Result, error) {
	rt := sim.New()
	point := syncpoint.New()

	bus := event.NewBus(logger)
	bus.SubscribeAll(func(e event.Event) {
		logger.Debug("harness event", "type", e.EventType())
	})

	w, err := workload.New(rt, point, workload.Config{
		ThreadName:   cfg.Agent.ThreadName,
		FieldName:    cfg.Agent.FieldName,
		Mode:         workload.Mode(cfg.Workload.Mode),
		HoldDuration: cfg.Workload.HoldDuration,
		Distractors:  cfg.Workload.Distractors,
	}, logger.With("component", "workload"))
	if err != nil {
		return agent.Result{}, fmt.Errorf("failed to build workload: %w", err)
	}

	a, err := agent.New(agent.Config{
		Runtime:               rt,
		Barrier:               point,
		ThreadName:            cfg.Agent.ThreadName,
		FieldName:             cfg.Agent.FieldName,
		FieldSignature:        cfg.Agent.FieldSignature,
		WaitTimeout:           cfg.Agent.BarrierTimeout(),
		DisableBothOnTeardown: cfg.Agent.DisableBothOnTeardown,
		TracePattern:          cfg.Trace.ThreadPattern,
	}, agent.WithLogger(logger.With("component", "agent")), agent.WithBus(bus))
	if err != nil {
		return agent.Result{}, fmt.Errorf("failed to create agent: %w", err)
	}

	return agent.NewRunner(a, rt, w).Run(ctx), nil
}
