package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g. "run.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
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

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all
// validation errors found. Note that non-positive iteration caps are
// deliberately legal: they fall back to the safe defaults at run time.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateRun()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateCommit()...)
	errs = append(errs, c.validateProgress()...)
	errs = append(errs, c.validateKnowledge()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validatePaths()...)

	return errs
}

func (c *Config) validateRun() []ValidationError {
	var errs []ValidationError

	if c.Run.TaskTimeoutSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "run.task_timeout_sec",
			Value:   c.Run.TaskTimeoutSec,
			Message: "must be positive",
		})
	}
	if c.Run.TotalTimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "run.total_timeout_sec",
			Value:   c.Run.TotalTimeoutSec,
			Message: "must be non-negative (0 disables the bound)",
		})
	}
	if c.Run.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "run.max_retries",
			Value:   c.Run.MaxRetries,
			Message: "must be non-negative",
		})
	}
	if c.Run.MaxIdenticalFailures < 1 {
		errs = append(errs, ValidationError{
			Field:   "run.max_identical_failures",
			Value:   c.Run.MaxIdenticalFailures,
			Message: "must be at least 1",
		})
	}
	if c.Run.MaxDecomposeDepth < 0 {
		errs = append(errs, ValidationError{
			Field:   "run.max_decompose_depth",
			Value:   c.Run.MaxDecomposeDepth,
			Message: "must be non-negative",
		})
	}
	if c.Run.ScopeGuard != "" && !slices.Contains(ValidScopeGuards(), c.Run.ScopeGuard) {
		errs = append(errs, ValidationError{
			Field:   "run.scope_guard",
			Value:   c.Run.ScopeGuard,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidScopeGuards(), ", ")),
		})
	}
	if c.Run.ApprovalMode != "" && !slices.Contains(ValidApprovalModes(), c.Run.ApprovalMode) {
		errs = append(errs, ValidationError{
			Field:   "run.approval_mode",
			Value:   c.Run.ApprovalMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidApprovalModes(), ", ")),
		})
	}

	return errs
}

func (c *Config) validateDiscovery() []ValidationError {
	var errs []ValidationError

	if c.Discovery.TimeoutSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "discovery.timeout_sec",
			Value:   c.Discovery.TimeoutSec,
			Message: "must be positive",
		})
	}
	if c.Discovery.Review && !c.Discovery.Enabled {
		errs = append(errs, ValidationError{
			Field:   "discovery.review",
			Value:   c.Discovery.Review,
			Message: "requires discovery.enabled",
		})
	}

	return errs
}

func (c *Config) validateCommit() []ValidationError {
	var errs []ValidationError

	if c.Commit.GitTimeoutSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "commit.git_timeout_sec",
			Value:   c.Commit.GitTimeoutSec,
			Message: "must be positive",
		})
	}

	return errs
}

func (c *Config) validateProgress() []ValidationError {
	var errs []ValidationError

	if c.Progress.HeartbeatSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "progress.heartbeat_sec",
			Value:   c.Progress.HeartbeatSec,
			Message: "must be positive",
		})
	}

	return errs
}

func (c *Config) validateKnowledge() []ValidationError {
	var errs []ValidationError

	if c.Knowledge.TokenBudget < 0 {
		errs = append(errs, ValidationError{
			Field:   "knowledge.token_budget",
			Value:   c.Knowledge.TokenBudget,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errs
}

func (c *Config) validatePaths() []ValidationError {
	var errs []ValidationError

	const maxPathLength = 4096
	for field, path := range map[string]string{
		"paths.state_dir": c.Paths.StateDir,
		"paths.plan_dir":  c.Paths.PlanDir,
	} {
		if strings.ContainsRune(path, '\x00') {
			errs = append(errs, ValidationError{
				Field:   field,
				Value:   path,
				Message: "path contains invalid null character",
			})
		}
		if len(path) > maxPathLength {
			errs = append(errs, ValidationError{
				Field:   field,
				Value:   path,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errs
}
