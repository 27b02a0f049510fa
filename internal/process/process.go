// Package process runs the external tools a cycle depends on (the coding
// agent and the firmware toolchain) behind a small interface so that tests
// can substitute canned results.
package process

import (
	"context"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// Runner abstracts command execution for testability.
type Runner interface {
	// Run executes name with args in dir and returns combined output.
	// A non-zero exit is returned as an error implementing ExitCode() int.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
	// LookPath resolves an executable name the way Run would.
	LookPath(name string) (string, error)
}

// ExecRunner executes commands using os/exec.
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command and returns combined output.
func (r *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// LookPath resolves name on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// ExitCode extracts a process exit status from err, or -1 when err did not
// come from a process that ran to completion.
func ExitCode(err error) int {
	var exit interface{ ExitCode() int }
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}

// RequireTool verifies that the executable of a configured command exists.
// setting names the configuration key the command came from.
func RequireTool(r Runner, command, setting string) error {
	name := Executable(command)
	if name == "" {
		return errors.NewConfigurationError("no command configured", errors.ErrInvalidConfig).
			WithSetting(setting)
	}
	if _, err := r.LookPath(name); err != nil {
		return errors.NewConfigurationError(name+" is not installed or not on PATH", errors.ErrToolNotFound).
			WithSetting(setting).
			WithHint("install " + name + " or point " + setting + " at it")
	}
	return nil
}

// Split breaks a configured command line ("python -m platformio") into the
// executable and its leading arguments. Quoting is not supported.
func Split(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// Executable returns the executable of a configured command line.
func Executable(command string) string {
	name, _ := Split(command)
	return name
}

// Tail returns at most the last limit bytes of output, trimmed, so that
// errors carry the interesting end of a long build log. The cut never
// splits a UTF-8 sequence.
func Tail(output []byte, limit int) string {
	s := strings.TrimSpace(string(output))
	if limit <= 0 || len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
