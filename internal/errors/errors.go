// Package errors provides centralized error definitions and error handling utilities
// for the evolve tool. It defines the failure taxonomy of an evolution cycle,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of a cycle collaborator:
//   - ConfigurationError: missing credential, missing external tool, invalid setting
//   - VersionControlError: checkout, branch or commit failure (carries git output)
//   - CritiqueUnavailableError: critic unreachable or not authenticated
//   - CritiqueParseError: critic answered with text that does not fit the schema
//   - MutationError: the coding agent exited non-zero or could not be started
//   - DeployError: firmware build or upload failed
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewVersionControlError("checkout failed", baseErr).
//	    WithBranch("evo-alpha-002").
//	    WithOutput(string(output))
//
//	err := errors.NewConfigurationError("critic credential missing", errors.ErrMissingCredential).
//	    WithSetting("GEMINI_API_KEY")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrDirtyWorktree) { ... }
//
//	var parseErr *errors.CritiqueParseError
//	if errors.As(err, &parseErr) { fmt.Println(parseErr.Raw) }
//
//	if errors.IsRecoverable(err) { ... }
//
// # Error Classification
//
// Nothing in the core retries automatically. Classification only tells the
// operator what a manual retry would cost:
//   - Recoverable: the failed stage can be re-run alone (mutation, deploy)
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Configuration sentinel errors
var (
	// ErrMissingCredential indicates that a required API credential is not set.
	ErrMissingCredential = New("credential not set")
	// ErrToolNotFound indicates that an external executable is not on PATH.
	ErrToolNotFound = New("external tool not found")
	// ErrInvalidConfig indicates a configuration value that cannot be used.
	ErrInvalidConfig = New("invalid configuration")
)

// Version control sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrBranchNotFound indicates that a branch could not be found.
	ErrBranchNotFound = New("branch not found")
	// ErrDirtyWorktree indicates that the working tree has uncommitted changes.
	ErrDirtyWorktree = New("working tree has uncommitted changes")
)

// Cycle sentinel errors
var (
	// ErrCritiqueRejected indicates a critic response that does not match the schema.
	ErrCritiqueRejected = New("critique does not match schema")
	// ErrAgentFailed indicates that the coding agent reported failure.
	ErrAgentFailed = New("mutation agent failed")
	// ErrBuildFailed indicates that the firmware did not compile.
	ErrBuildFailed = New("build failed")
	// ErrUploadFailed indicates that flashing the device failed.
	ErrUploadFailed = New("upload failed")
	// ErrRecordNotFound indicates that no generation record exists for a key.
	ErrRecordNotFound = New("generation record not found")
	// ErrLocked indicates that another process holds the repository run lock.
	ErrLocked = New("repository is locked by another evolve process")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// EvolveError is the base interface for all evolve errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type EvolveError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRecoverable returns true if the failed stage may be re-run on its own
	// without repeating earlier, already-paid stages.
	IsRecoverable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message     string
	cause       error
	severity    Severity
	recoverable bool
	userFacing  bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRecoverable returns whether the failed stage can be retried alone.
func (e *baseError) IsRecoverable() bool {
	return e.recoverable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) formatWithContext(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ConfigurationError represents a missing credential, a missing external tool,
// or an unusable setting. It is always fatal and raised before any work starts.
//
// Example:
//
//	err := errors.NewConfigurationError("critic credential missing", errors.ErrMissingCredential).
//	    WithSetting("GEMINI_API_KEY").
//	    WithHint("export GEMINI_API_KEY=...")
//	fmt.Println(err) // "configuration error [setting=GEMINI_API_KEY]: critic credential missing: credential not set"
type ConfigurationError struct {
	baseError
	Setting string
	Hint    string
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
	}
}

// WithSetting names the configuration key or environment variable at fault.
func (e *ConfigurationError) WithSetting(setting string) *ConfigurationError {
	e.Setting = setting
	return e
}

// WithHint attaches a remediation hint shown to the operator.
func (e *ConfigurationError) WithHint(hint string) *ConfigurationError {
	e.Hint = hint
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Setting != "" {
		parts = append(parts, fmt.Sprintf("setting=%s", e.Setting))
	}
	msg := e.formatWithContext("configuration error", parts)
	if e.Hint != "" {
		msg = fmt.Sprintf("%s\nhint: %s", msg, e.Hint)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// VersionControlError represents errors related to git operations.
//
// Example:
//
//	err := errors.NewVersionControlError("failed to create branch", cause)
//	err = err.WithBranch("evo-alpha-001").WithRepository("/src/city")
type VersionControlError struct {
	baseError
	Branch     string
	Repository string
	Output     string // Captured git command output
}

// NewVersionControlError creates a new VersionControlError.
func NewVersionControlError(message string, cause error) *VersionControlError {
	return &VersionControlError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithBranch adds a branch name to the error context.
func (e *VersionControlError) WithBranch(branch string) *VersionControlError {
	e.Branch = branch
	return e
}

// WithRepository adds a repository path to the error context.
func (e *VersionControlError) WithRepository(path string) *VersionControlError {
	e.Repository = path
	return e
}

// WithOutput adds git command output to the error context.
func (e *VersionControlError) WithOutput(output string) *VersionControlError {
	e.Output = strings.TrimSpace(output)
	return e
}

// WithSeverity sets the error severity.
func (e *VersionControlError) WithSeverity(s Severity) *VersionControlError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *VersionControlError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	msg := e.formatWithContext("git error", parts)
	if e.Output != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.Output)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *VersionControlError) Is(target error) bool {
	if _, ok := target.(*VersionControlError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CritiqueUnavailableError represents a critic that could not be reached or
// refused the request. Nothing is recorded when it occurs.
type CritiqueUnavailableError struct {
	baseError
	Backend string
}

// NewCritiqueUnavailableError creates a new CritiqueUnavailableError.
func NewCritiqueUnavailableError(message string, cause error) *CritiqueUnavailableError {
	return &CritiqueUnavailableError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithBackend names the critic backend.
func (e *CritiqueUnavailableError) WithBackend(backend string) *CritiqueUnavailableError {
	e.Backend = backend
	return e
}

// Error returns the formatted error message.
func (e *CritiqueUnavailableError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	return e.formatWithContext("critique unavailable", parts)
}

// Is checks if this error matches the target.
func (e *CritiqueUnavailableError) Is(target error) bool {
	if _, ok := target.(*CritiqueUnavailableError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CritiqueParseError carries a critic response that could not be decoded into
// the critique schema. The raw text is kept because an operator can still act
// on it.
//
// Example:
//
//	err := errors.NewCritiqueParseError(raw, "unexpected end of JSON input")
//	fmt.Println(err.Raw)
type CritiqueParseError struct {
	baseError
	Raw    string
	Reason string
}

// NewCritiqueParseError creates a new CritiqueParseError.
func NewCritiqueParseError(raw, reason string) *CritiqueParseError {
	return &CritiqueParseError{
		baseError: baseError{
			message:    reason,
			cause:      ErrCritiqueRejected,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Raw:    raw,
		Reason: reason,
	}
}

// Error returns the formatted error message.
func (e *CritiqueParseError) Error() string {
	return fmt.Sprintf("critique parse error: %s (%d bytes of raw response kept)", e.Reason, len(e.Raw))
}

// Is checks if this error matches the target.
func (e *CritiqueParseError) Is(target error) bool {
	if _, ok := target.(*CritiqueParseError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MutationError represents a coding agent invocation that failed. The critique
// is already recorded, so the mutation can be retried by hand.
type MutationError struct {
	baseError
	Backend  string
	ExitCode int
	Output   string
}

// NewMutationError creates a new MutationError.
func NewMutationError(message string, cause error) *MutationError {
	return &MutationError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			recoverable: true,
			userFacing:  true,
		},
		ExitCode: -1,
	}
}

// WithBackend names the agent backend.
func (e *MutationError) WithBackend(backend string) *MutationError {
	e.Backend = backend
	return e
}

// WithExitCode records the agent's exit status.
func (e *MutationError) WithExitCode(code int) *MutationError {
	e.ExitCode = code
	return e
}

// WithOutput attaches the agent's captured output.
func (e *MutationError) WithOutput(output string) *MutationError {
	e.Output = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *MutationError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	msg := e.formatWithContext("mutation error", parts)
	if e.Output != "" {
		msg = fmt.Sprintf("%s\nagent output: %s", msg, e.Output)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *MutationError) Is(target error) bool {
	if _, ok := target.(*MutationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DeployError represents a failed firmware build or upload. Partially mutated
// code stays uncommitted.
type DeployError struct {
	baseError
	Step   string // "build" or "upload"
	Target string
	Output string
}

// NewDeployError creates a new DeployError.
func NewDeployError(step, message string, cause error) *DeployError {
	return &DeployError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			recoverable: true,
			userFacing:  true,
		},
		Step: step,
	}
}

// WithTarget names the build environment.
func (e *DeployError) WithTarget(target string) *DeployError {
	e.Target = target
	return e
}

// WithOutput attaches the build tool's captured output.
func (e *DeployError) WithOutput(output string) *DeployError {
	e.Output = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *DeployError) Error() string {
	var parts []string
	if e.Step != "" {
		parts = append(parts, fmt.Sprintf("step=%s", e.Step))
	}
	if e.Target != "" {
		parts = append(parts, fmt.Sprintf("target=%s", e.Target))
	}
	msg := e.formatWithContext("deploy error", parts)
	if e.Output != "" {
		msg = fmt.Sprintf("%s\nbuild output: %s", msg, e.Output)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *DeployError) Is(target error) bool {
	if _, ok := target.(*DeployError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("generation record", "alpha/3")
//	fmt.Println(err) // "generation record 'alpha/3' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("line must be a URL-safe token").
//	    WithField("line").
//	    WithValue("alpha/beta")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds the field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.formatWithContext("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRecoverable returns true if the error came from a stage that can be re-run
// on its own (mutation or deploy). The caller decides whether to do so; this
// package never retries.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var evolveErr EvolveError
	if As(err, &evolveErr) {
		return evolveErr.IsRecoverable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var evolveErr EvolveError
	if As(err, &evolveErr) {
		return evolveErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement EvolveError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var evolveErr EvolveError
	if As(err, &evolveErr) {
		return evolveErr.Severity()
	}
	return SeverityError
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return As(err, &cfgErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to save generation record")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
