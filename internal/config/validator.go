package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/contendwatch/internal/workload"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "agent.wait_time_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxDistractors keeps the simulated thread table small
const maxDistractors = 64

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateWorkload()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTrace()...)

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Agent.ThreadName) == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.thread_name",
			Value:   c.Agent.ThreadName,
			Message: "must not be empty",
		})
	}

	if strings.TrimSpace(c.Agent.FieldName) == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.field_name",
			Value:   c.Agent.FieldName,
			Message: "must not be empty",
		})
	}

	if c.Agent.FieldSignature == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.field_signature",
			Value:   c.Agent.FieldSignature,
			Message: "must not be empty",
		})
	}

	// Either the minutes or the override must yield a positive timeout
	if c.Agent.WaitTimeMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.wait_time_minutes",
			Value:   c.Agent.WaitTimeMinutes,
			Message: "must be non-negative",
		})
	}
	if c.Agent.WaitTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.wait_timeout",
			Value:   c.Agent.WaitTimeout,
			Message: "must be non-negative",
		})
	}
	if c.Agent.WaitTimeMinutes == 0 && c.Agent.WaitTimeout == 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.wait_time_minutes",
			Value:   c.Agent.WaitTimeMinutes,
			Message: "must be positive when agent.wait_timeout is unset",
		})
	}

	return errors
}

func (c *Config) validateWorkload() []ValidationError {
	var errors []ValidationError

	if !workload.Mode(c.Workload.Mode).IsValid() {
		var modes []string
		for _, m := range workload.ValidModes() {
			modes = append(modes, string(m))
		}
		errors = append(errors, ValidationError{
			Field:   "workload.mode",
			Value:   c.Workload.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(modes, ", ")),
		})
	}

	if c.Workload.HoldDuration < 0 {
		errors = append(errors, ValidationError{
			Field:   "workload.hold_duration",
			Value:   c.Workload.HoldDuration,
			Message: "must be non-negative",
		})
	}

	if c.Workload.Distractors < 0 || c.Workload.Distractors > maxDistractors {
		errors = append(errors, ValidationError{
			Field:   "workload.distractors",
			Value:   c.Workload.Distractors,
			Message: fmt.Sprintf("must be between 0 and %d", maxDistractors),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "contains invalid null character",
		})
	}

	return errors
}

func (c *Config) validateTrace() []ValidationError {
	if c.Trace.ThreadPattern == "" {
		return nil
	}
	if _, err := glob.Compile(c.Trace.ThreadPattern); err != nil {
		return []ValidationError{{
			Field:   "trace.thread_pattern",
			Value:   c.Trace.ThreadPattern,
			Message: fmt.Sprintf("invalid glob: %v", err),
		}}
	}
	return nil
}
