// Package logging provides structured logging for contention-observation runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Every line carries the attributes of the logger that
// produced it, so a single run's output can be filtered by run ID, phase, or
// event kind after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("barrier reached", "checkpoint", 1)
//
// # Context Propagation
//
//	runLogger := logger.WithRun("run-1")
//	phaseLogger := runLogger.WithPhase("awaiting_initial_sync")
//	eventLogger := phaseLogger.WithEvent("monitor_contended_enter")
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"event delivered","run_id":"run-1","phase":"awaiting_initial_sync","event":"monitor_contended_enter","matched":true}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on what was logged.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Event handlers log
// from runtime threads while the coordinator logs from its own thread.
package logging
