package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/contendwatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View contendwatch configuration",
	Long: `View contendwatch configuration.

Without arguments, displays the effective configuration after defaults,
the config file, CONTENDWATCH_* environment variables and flags are merged.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/contendwatch/config.yaml.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// fileConfig mirrors config.Config with yaml keys for writing.
type fileConfig struct {
	Agent struct {
		ThreadName            string `yaml:"thread_name"`
		FieldName             string `yaml:"field_name"`
		FieldSignature        string `yaml:"field_signature"`
		WaitTimeMinutes       int    `yaml:"wait_time_minutes"`
		WaitTimeout           string `yaml:"wait_timeout,omitempty"`
		DisableBothOnTeardown bool   `yaml:"disable_both_on_teardown"`
	} `yaml:"agent"`
	Workload struct {
		Mode         string `yaml:"mode"`
		HoldDuration string `yaml:"hold_duration"`
		Distractors  int    `yaml:"distractors"`
	} `yaml:"workload"`
	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir,omitempty"`
	} `yaml:"logging"`
	Trace struct {
		ThreadPattern string `yaml:"thread_pattern,omitempty"`
	} `yaml:"trace"`
}

func toFileConfig(cfg *config.Config) fileConfig {
	var fc fileConfig
	fc.Agent.ThreadName = cfg.Agent.ThreadName
	fc.Agent.FieldName = cfg.Agent.FieldName
	fc.Agent.FieldSignature = cfg.Agent.FieldSignature
	fc.Agent.WaitTimeMinutes = cfg.Agent.WaitTimeMinutes
	if cfg.Agent.WaitTimeout > 0 {
		fc.Agent.WaitTimeout = cfg.Agent.WaitTimeout.String()
	}
	fc.Agent.DisableBothOnTeardown = cfg.Agent.DisableBothOnTeardown
	fc.Workload.Mode = cfg.Workload.Mode
	fc.Workload.HoldDuration = cfg.Workload.HoldDuration.String()
	fc.Workload.Distractors = cfg.Workload.Distractors
	fc.Logging.Level = cfg.Logging.Level
	fc.Logging.Dir = cfg.Logging.Dir
	fc.Trace.ThreadPattern = cfg.Trace.ThreadPattern
	return fc
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(toFileConfig(cfg)); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(toFileConfig(config.Default()))
	if err != nil {
		return err
	}
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
	return nil
}
