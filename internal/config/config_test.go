package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default agent config
	if cfg.Agent.ThreadName != "Debuggee Thread" {
		t.Errorf("Agent.ThreadName = %q, want %q", cfg.Agent.ThreadName, "Debuggee Thread")
	}
	if cfg.Agent.FieldName != "endingMonitor" {
		t.Errorf("Agent.FieldName = %q, want %q", cfg.Agent.FieldName, "endingMonitor")
	}
	if cfg.Agent.FieldSignature != "Ljava/lang/Object;" {
		t.Errorf("Agent.FieldSignature = %q", cfg.Agent.FieldSignature)
	}
	if cfg.Agent.WaitTimeMinutes != 2 {
		t.Errorf("Agent.WaitTimeMinutes = %d, want 2", cfg.Agent.WaitTimeMinutes)
	}
	if !cfg.Agent.DisableBothOnTeardown {
		t.Error("Agent.DisableBothOnTeardown should be true by default")
	}

	// Verify default workload config
	if cfg.Workload.Mode != "contend" {
		t.Errorf("Workload.Mode = %q, want %q", cfg.Workload.Mode, "contend")
	}
	if cfg.Workload.HoldDuration != 100*time.Millisecond {
		t.Errorf("Workload.HoldDuration = %v, want 100ms", cfg.Workload.HoldDuration)
	}
	if cfg.Workload.Distractors != 1 {
		t.Errorf("Workload.Distractors = %d, want 1", cfg.Workload.Distractors)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestAgentConfig_BarrierTimeout(t *testing.T) {
	tests := []struct {
		name     string
		minutes  int
		override time.Duration
		want     time.Duration
	}{
		{"default minutes", 2, 0, 2 * time.Minute},
		{"one minute", 1, 0, 60000 * time.Millisecond},
		{"override wins", 2, 250 * time.Millisecond, 250 * time.Millisecond},
		{"override without minutes", 0, time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AgentConfig{WaitTimeMinutes: tt.minutes, WaitTimeout: tt.override}
			if got := cfg.BarrierTimeout(); got != tt.want {
				t.Errorf("BarrierTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/contendwatch" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/contendwatch")
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "contendwatch")
		if got := ConfigDir(); got != expected {
			t.Errorf("ConfigDir() = %q, want %q", got, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/contendwatch/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Agent.ThreadName != "Debuggee Thread" {
		t.Errorf("Get().Agent.ThreadName = %q", cfg.Agent.ThreadName)
	}
	if cfg.Workload.HoldDuration != 100*time.Millisecond {
		t.Errorf("Get().Workload.HoldDuration = %v", cfg.Workload.HoldDuration)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `agent:
  thread_name: Worker
  wait_timeout: 3s
  disable_both_on_teardown: false
workload:
  mode: no_acquire
  hold_duration: 20ms
  distractors: 3
trace:
  thread_pattern: "Distractor-*"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.ThreadName != "Worker" {
		t.Errorf("Agent.ThreadName = %q, want Worker", cfg.Agent.ThreadName)
	}
	if cfg.Agent.FieldName != "endingMonitor" {
		t.Errorf("Agent.FieldName = %q, want the default", cfg.Agent.FieldName)
	}
	if cfg.Agent.BarrierTimeout() != 3*time.Second {
		t.Errorf("BarrierTimeout() = %v, want 3s", cfg.Agent.BarrierTimeout())
	}
	if cfg.Agent.DisableBothOnTeardown {
		t.Error("Agent.DisableBothOnTeardown should be false from file")
	}
	if cfg.Workload.Mode != "no_acquire" || cfg.Workload.HoldDuration != 20*time.Millisecond || cfg.Workload.Distractors != 3 {
		t.Errorf("Workload = %+v", cfg.Workload)
	}
	if cfg.Trace.ThreadPattern != "Distractor-*" {
		t.Errorf("Trace.ThreadPattern = %q", cfg.Trace.ThreadPattern)
	}
}

func TestLoad_InvalidFallsBackInGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("workload.mode", "spin")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an unknown workload mode")
	}
	if cfg := Get(); cfg.Workload.Mode != "contend" {
		t.Errorf("Get().Workload.Mode = %q, want default after invalid load", cfg.Workload.Mode)
	}
}
