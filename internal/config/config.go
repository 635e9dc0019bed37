package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete contendwatch configuration
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Workload WorkloadConfig `mapstructure:"workload"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

// AgentConfig controls how the observer finds its target and waits on the workload
type AgentConfig struct {
	// ThreadName is the display name of the thread under observation
	ThreadName string `mapstructure:"thread_name"`
	// FieldName is the instance field on that thread holding the monitor object
	FieldName string `mapstructure:"field_name"`
	// FieldSignature is the type signature used to look the field up
	FieldSignature string `mapstructure:"field_signature"`
	// WaitTimeMinutes bounds each barrier wait. The timeout is minutes * 60000ms.
	WaitTimeMinutes int `mapstructure:"wait_time_minutes"`
	// WaitTimeout overrides WaitTimeMinutes when non-zero
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	// DisableBothOnTeardown disables the entered notification at teardown as
	// well as the enter notification. When false, entered stays enabled.
	DisableBothOnTeardown bool `mapstructure:"disable_both_on_teardown"`
}

// WorkloadConfig controls the built-in contention scenario
type WorkloadConfig struct {
	// Mode selects the scenario: "contend" or "no_acquire"
	Mode string `mapstructure:"mode"`
	// HoldDuration is how long the holder keeps the monitors once every contender is blocked
	HoldDuration time.Duration `mapstructure:"hold_duration"`
	// Distractors is the number of unrelated threads contending on their own monitors
	Distractors int `mapstructure:"distractors"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir is the directory for contendwatch.log. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// TraceConfig controls which event deliveries are logged
type TraceConfig struct {
	// ThreadPattern is a glob matched against the delivering thread name.
	// Empty logs every delivery. Counting is never affected.
	ThreadPattern string `mapstructure:"thread_pattern"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			ThreadName:            "Debuggee Thread",
			FieldName:             "endingMonitor",
			FieldSignature:        "Ljava/lang/Object;",
			WaitTimeMinutes:       2,
			DisableBothOnTeardown: true,
		},
		Workload: WorkloadConfig{
			Mode:         "contend",
			HoldDuration: 100 * time.Millisecond,
			Distractors:  1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// BarrierTimeout returns the effective timeout for each barrier wait
func (c *AgentConfig) BarrierTimeout() time.Duration {
	if c.WaitTimeout > 0 {
		return c.WaitTimeout
	}
	return time.Duration(c.WaitTimeMinutes) * 60000 * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Agent defaults
	viper.SetDefault("agent.thread_name", defaults.Agent.ThreadName)
	viper.SetDefault("agent.field_name", defaults.Agent.FieldName)
	viper.SetDefault("agent.field_signature", defaults.Agent.FieldSignature)
	viper.SetDefault("agent.wait_time_minutes", defaults.Agent.WaitTimeMinutes)
	viper.SetDefault("agent.wait_timeout", defaults.Agent.WaitTimeout)
	viper.SetDefault("agent.disable_both_on_teardown", defaults.Agent.DisableBothOnTeardown)

	// Workload defaults
	viper.SetDefault("workload.mode", defaults.Workload.Mode)
	viper.SetDefault("workload.hold_duration", defaults.Workload.HoldDuration)
	viper.SetDefault("workload.distractors", defaults.Workload.Distractors)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Trace defaults
	viper.SetDefault("trace.thread_pattern", defaults.Trace.ThreadPattern)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "contendwatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".contendwatch"
	}
	return filepath.Join(home, ".config", "contendwatch")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
