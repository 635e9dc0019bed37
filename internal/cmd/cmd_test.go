package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/contendwatch/internal/logging"
)

// executeCommand runs the root command with args and returns captured stdout
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// runArgs pins every run flag so earlier invocations in this process
// cannot leak into the next one.
func runArgs(t *testing.T, mode, format string) []string {
	return []string{
		"run",
		"--mode", mode,
		"--format", format,
		"--hold", "5ms",
		"--distractors", "1",
		"--timeout", "10s",
		"--log-dir", t.TempDir(),
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "contendwatch" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "contendwatch")
	}

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "caps", "config", "version"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestRun_ContendPasses(t *testing.T) {
	args := runArgs(t, "contend", "json")
	out, err := executeCommand(t, args...)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	var decoded struct {
		Passed     bool   `json:"passed"`
		EventCount int64  `json:"event_count"`
		Phase      string `json:"phase"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !decoded.Passed || decoded.EventCount < 1 || decoded.Phase != "done" {
		t.Errorf("report = %+v", decoded)
	}

	logDir := args[len(args)-1]
	data, err := os.ReadFile(filepath.Join(logDir, logging.FileName))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "PASS") {
		t.Errorf("log file lacks the run summary:\n%s", data)
	}
}

func TestRun_NoAcquireFails(t *testing.T) {
	out, err := executeCommand(t, runArgs(t, "no_acquire", "text")...)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("run error = %v, want ErrRunFailed", err)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "event_count = 0") {
		t.Errorf("text report:\n%s", out)
	}
}

func TestRun_InvalidInput(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		if _, err := executeCommand(t, runArgs(t, "contend", "xml")...); err == nil {
			t.Error("run with unknown format should fail")
		}
	})
	t.Run("mode", func(t *testing.T) {
		t.Cleanup(func() { _ = runCmd.Flags().Set("mode", "contend") })
		_, err := executeCommand(t, runArgs(t, "spin", "json")...)
		if err == nil || !strings.Contains(err.Error(), "workload.mode") {
			t.Errorf("run error = %v, want a workload.mode validation error", err)
		}
	})
}

func TestCaps(t *testing.T) {
	out, err := executeCommand(t, "caps")
	if err != nil {
		t.Fatalf("caps error = %v", err)
	}
	if !strings.Contains(out, "can_generate_monitor_events") || !strings.Contains(out, "granted") {
		t.Errorf("caps output:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "contendwatch "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	want := filepath.Join(xdg, "contendwatch", "config.yaml")

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		defer rootCmd.SetOut(nil)
		err := rootCmd.Execute()
		return out.String(), err
	}

	out, err := run("config", "path")
	if err != nil || strings.TrimSpace(out) != want {
		t.Errorf("config path = %q, %v; want %q", out, err, want)
	}

	if _, err := run("config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if !strings.Contains(string(data), "thread_name: Debuggee Thread") {
		t.Errorf("config file:\n%s", data)
	}
	if _, err := run("config", "init"); err == nil {
		t.Error("second config init should fail")
	}

	out, err = run("config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "disable_both_on_teardown: true") || !strings.Contains(out, "field_name: endingMonitor") {
		t.Errorf("config show:\n%s", out)
	}
}
