package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "critic.backend")
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

// refNameRegex validates line names, tags and branch names used in refs.
// Must start with alphanumeric or underscore; may contain hyphens afterwards.
var refNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// lineNameRegex is stricter than refNameRegex: lines end up inside branch
// names of the form evo-{line}-{NNN}.
var lineNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// envVarRegex validates environment variable names
var envVarRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidApprovalModes returns the approval modes accepted by the codex backend
func ValidApprovalModes() []string {
	return []string{"suggest", "auto-edit", "full-auto"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateEvolution()...)
	errors = append(errors, c.validateCritic()...)
	errors = append(errors, c.validateMutator()...)
	errors = append(errors, c.validateDeploy()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateEvolution validates the EvolutionConfig
func (c *Config) validateEvolution() []ValidationError {
	var errors []ValidationError

	if !lineNameRegex.MatchString(c.Evolution.DefaultLine) {
		errors = append(errors, ValidationError{
			Field:   "evolution.default_line",
			Value:   c.Evolution.DefaultLine,
			Message: "must contain only letters, digits, underscore and hyphen, and not start with a hyphen",
		})
	}

	if !refNameRegex.MatchString(c.Evolution.SeedTag) {
		errors = append(errors, ValidationError{
			Field:   "evolution.seed_tag",
			Value:   c.Evolution.SeedTag,
			Message: "must be a valid tag name",
		})
	}

	if !refNameRegex.MatchString(c.Evolution.TrunkBranch) {
		errors = append(errors, ValidationError{
			Field:   "evolution.trunk_branch",
			Value:   c.Evolution.TrunkBranch,
			Message: "must be a valid branch name",
		})
	}

	return errors
}

// validateCritic validates the CriticConfig
func (c *Config) validateCritic() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidCriticBackends(), c.Critic.Backend) {
		errors = append(errors, ValidationError{
			Field:   "critic.backend",
			Value:   c.Critic.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCriticBackends(), ", ")),
		})
	}

	if c.Critic.APIKeyEnv != "" && !envVarRegex.MatchString(c.Critic.APIKeyEnv) {
		errors = append(errors, ValidationError{
			Field:   "critic.api_key_env",
			Value:   c.Critic.APIKeyEnv,
			Message: "must be a valid environment variable name",
		})
	}

	if c.Critic.BaseURL != "" && !strings.HasPrefix(c.Critic.BaseURL, "http://") && !strings.HasPrefix(c.Critic.BaseURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "critic.base_url",
			Value:   c.Critic.BaseURL,
			Message: "must be an http or https URL",
		})
	}

	if c.Critic.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "critic.timeout_seconds",
			Value:   c.Critic.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateMutator validates the MutatorConfig
func (c *Config) validateMutator() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidMutatorBackends(), c.Mutator.Backend) {
		errors = append(errors, ValidationError{
			Field:   "mutator.backend",
			Value:   c.Mutator.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidMutatorBackends(), ", ")),
		})
	}

	if c.Mutator.Backend == "codex" && !slices.Contains(ValidApprovalModes(), c.Mutator.ApprovalMode) {
		errors = append(errors, ValidationError{
			Field:   "mutator.approval_mode",
			Value:   c.Mutator.ApprovalMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidApprovalModes(), ", ")),
		})
	}

	if len(c.Mutator.EditableFiles) == 0 {
		errors = append(errors, ValidationError{
			Field:   "mutator.editable_files",
			Value:   c.Mutator.EditableFiles,
			Message: "must list at least one file",
		})
	}

	for i, f := range c.Mutator.EditableFiles {
		if strings.TrimSpace(f) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("mutator.editable_files[%d]", i),
				Value:   f,
				Message: "must not be empty",
			})
		}
	}

	if c.Mutator.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "mutator.timeout_minutes",
			Value:   c.Mutator.TimeoutMinutes,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateDeploy validates the DeployConfig
func (c *Config) validateDeploy() []ValidationError {
	var errors []ValidationError

	if len(strings.Fields(c.Deploy.Command)) == 0 {
		errors = append(errors, ValidationError{
			Field:   "deploy.command",
			Value:   c.Deploy.Command,
			Message: "must not be empty",
		})
	}

	if strings.TrimSpace(c.Deploy.Environment) == "" {
		errors = append(errors, ValidationError{
			Field:   "deploy.environment",
			Value:   c.Deploy.Environment,
			Message: "must not be empty",
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	paths := []struct {
		field string
		value string
	}{
		{"paths.state_dir", c.Paths.StateDir},
		{"paths.captures_dir", c.Paths.CapturesDir},
		{"paths.generations_dir", c.Paths.GenerationsDir},
	}

	for _, p := range paths {
		if p.value == "" {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "must not be empty",
			})
			continue
		}

		// Check for null bytes which are invalid in paths
		if strings.ContainsRune(p.value, '\x00') {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "path contains invalid null character",
			})
		}

		// Reasonable path length limit (most filesystems have limits around 4096)
		const maxPathLength = 4096
		if len(p.value) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.SettleMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.settle_ms",
			Value:   c.Watch.SettleMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
