// Package deploy builds the firmware and flashes it to the display through
// the PlatformIO command line.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/process"
)

// Steps reported in *errors.DeployError.
const (
	StepBuild  = "build"
	StepUpload = "upload"
)

// outputLimit bounds how much toolchain output an error carries.
const outputLimit = 8192

// Toolchain runs `<command> run -e <environment> [-t upload]` in the project.
type Toolchain struct {
	command     string
	environment string
	workDir     string
	runner      process.Runner
	logger      *logging.Logger
}

// New creates a Toolchain for the project at workDir.
func New(cfg config.DeployConfig, workDir string, logger *logging.Logger) *Toolchain {
	return NewWithRunner(cfg, workDir, process.NewExecRunner(), logger)
}

// NewWithRunner creates a Toolchain with a custom runner.
// This is primarily useful for testing.
func NewWithRunner(cfg config.DeployConfig, workDir string, runner process.Runner, logger *logging.Logger) *Toolchain {
	if logger == nil {
		logger = logging.NopLogger()
	}
	command := cfg.Command
	if command == "" {
		command = "python -m platformio"
	}
	env := cfg.Environment
	if env == "" {
		env = "tdisplay"
	}
	return &Toolchain{
		command:     command,
		environment: env,
		workDir:     workDir,
		runner:      runner,
		logger:      logger.With("environment", env),
	}
}

// Environment returns the build target name.
func (t *Toolchain) Environment() string {
	return t.environment
}

// Check verifies that the toolchain executable is installed.
func (t *Toolchain) Check() error {
	return process.RequireTool(t.runner, t.command, "deploy.command")
}

// Build compiles the firmware.
func (t *Toolchain) Build(ctx context.Context) error {
	return t.run(ctx, StepBuild, errors.ErrBuildFailed)
}

// Upload compiles if needed and flashes the connected device.
func (t *Toolchain) Upload(ctx context.Context) error {
	return t.run(ctx, StepUpload, errors.ErrUploadFailed, "-t", "upload")
}

func (t *Toolchain) run(ctx context.Context, step string, sentinel error, extra ...string) error {
	name, args := process.Split(t.command)
	args = append(args, "run", "-e", t.environment)
	args = append(args, extra...)

	t.logger.Info("running toolchain", "step", step)
	started := time.Now()

	output, err := t.runner.Run(ctx, t.workDir, name, args...)
	if err != nil {
		t.logger.Error("toolchain failed",
			"step", step,
			"exit_code", process.ExitCode(err),
			"error", err,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return errors.NewDeployError(step, exitMessage(name, err), errors.Join(sentinel, err)).
			WithTarget(t.environment).
			WithOutput(process.Tail(output, outputLimit))
	}

	t.logger.Info("toolchain step complete",
		"step", step,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// exitMessage describes how the toolchain process ended.
func exitMessage(name string, err error) string {
	if code := process.ExitCode(err); code >= 0 {
		return fmt.Sprintf("%s exited with status %d", name, code)
	}
	return "could not run " + name
}
