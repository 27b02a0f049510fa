// Package mutation hands a critique to a coding agent that rewrites the
// firmware sources.
//
// The agent is opaque: only the success of the invocation matters, never
// which files it touched. A failed run is a *errors.MutationError, which is
// recoverable because the critique it worked from is already recorded.
package mutation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/process"
)

// BackendName identifies a supported coding agent.
type BackendName string

const (
	BackendClaude BackendName = "claude"
	BackendCodex  BackendName = "codex"
)

// outputLimit bounds how much agent output an error carries.
const outputLimit = 4096

// Backend builds the non-interactive command line of one agent.
type Backend interface {
	Name() BackendName
	DisplayName() string
	// Command returns the executable and arguments that run prompt once.
	Command(prompt string) (string, []string)
}

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown mutation backend")

// NewBackend builds a Backend from configuration.
func NewBackend(cfg config.MutatorConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case string(BackendClaude), "":
		return NewClaudeBackend(cfg), nil
	case string(BackendCodex):
		return NewCodexBackend(cfg), nil
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("%v: %s", ErrUnknownBackend, cfg.Backend), errors.ErrInvalidConfig).
			WithSetting("mutator.backend")
	}
}

// ClaudeBackend runs Claude Code in print mode.
type ClaudeBackend struct {
	command         string
	skipPermissions bool
}

// NewClaudeBackend creates a Claude backend from config.
func NewClaudeBackend(cfg config.MutatorConfig) *ClaudeBackend {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &ClaudeBackend{
		command:         command,
		skipPermissions: cfg.SkipPermissions,
	}
}

func (c *ClaudeBackend) Name() BackendName { return BackendClaude }

func (c *ClaudeBackend) DisplayName() string { return "Claude" }

func (c *ClaudeBackend) Command(prompt string) (string, []string) {
	name, args := process.Split(c.command)
	if c.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	return name, append(args, "-p", prompt)
}

// CodexBackend runs the Codex CLI's exec subcommand.
type CodexBackend struct {
	command      string
	approvalMode string
}

// NewCodexBackend creates a Codex backend from config.
func NewCodexBackend(cfg config.MutatorConfig) *CodexBackend {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	mode := cfg.ApprovalMode
	if mode == "" {
		mode = "full-auto"
	}
	return &CodexBackend{
		command:      command,
		approvalMode: mode,
	}
}

func (c *CodexBackend) Name() BackendName { return BackendCodex }

func (c *CodexBackend) DisplayName() string { return "Codex" }

func (c *CodexBackend) Command(prompt string) (string, []string) {
	name, args := process.Split(c.command)
	args = append(args, "exec")
	args = append(args, c.approvalFlags()...)
	return name, append(args, prompt)
}

func (c *CodexBackend) approvalFlags() []string {
	switch strings.ToLower(c.approvalMode) {
	case "full-auto":
		return []string{"--full-auto"}
	default:
		return nil
	}
}

// Agent invokes a Backend inside the project directory.
type Agent struct {
	backend Backend
	runner  process.Runner
	workDir string
	timeout time.Duration
	logger  *logging.Logger
}

// NewAgent creates an Agent running backend in workDir.
func NewAgent(backend Backend, workDir string, timeout time.Duration, runner process.Runner, logger *logging.Logger) *Agent {
	if runner == nil {
		runner = process.NewExecRunner()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Agent{
		backend: backend,
		runner:  runner,
		workDir: workDir,
		timeout: timeout,
		logger:  logger.With("agent", string(backend.Name())),
	}
}

// Name returns the backend name.
func (a *Agent) Name() string {
	return string(a.backend.Name())
}

// Check verifies that the agent executable is installed.
func (a *Agent) Check() error {
	name, _ := a.backend.Command("")
	return process.RequireTool(a.runner, name, "mutator.command")
}

// Mutate runs the agent once with prompt and waits for it to exit.
func (a *Agent) Mutate(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.NewValidationError("mutation prompt is empty").WithField("prompt")
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	name, args := a.backend.Command(prompt)
	a.logger.Info("invoking mutation agent",
		"command", name,
		"prompt_chars", len(prompt),
	)
	started := time.Now()

	output, err := a.runner.Run(ctx, a.workDir, name, args...)
	if err != nil {
		code := process.ExitCode(err)
		a.logger.Error("mutation agent failed",
			"exit_code", code,
			"error", err,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		cause := errors.ErrAgentFailed
		if ctx.Err() != nil {
			cause = errors.Join(errors.ErrAgentFailed, ctx.Err())
		}
		return errors.NewMutationError(a.backend.DisplayName()+" exited with an error", cause).
			WithBackend(string(a.backend.Name())).
			WithExitCode(code).
			WithOutput(process.Tail(output, outputLimit))
	}

	a.logger.Info("mutation complete",
		"output_bytes", len(output),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// New builds the Agent selected by cfg for the project at workDir.
func New(cfg config.MutatorConfig, workDir string, logger *logging.Logger) (*Agent, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewAgent(backend, workDir, cfg.MutationTimeout(), nil, logger), nil
}
