package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/deploy"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/evolve"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/mutation"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/runlock"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/status"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/vcs"
)

// newViper returns a viper instance with defaults, environment overrides and
// every config file applied. The project-local file is looked up in the
// working directory. With allowMissing, an explicit --config file that does
// not exist yet is skipped rather than reported.
func newViper(allowMissing bool) (*viper.Viper, error) {
	file := cfgFile
	if allowMissing && file != "" {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			file = ""
		}
	}
	v := viper.New()
	config.Setup(v, file)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	if err := config.ReadInConfig(v, cwd); err != nil {
		return nil, errors.NewConfigurationError("failed to read config file", errors.Join(errors.ErrInvalidConfig, err)).
			WithSetting("config")
	}
	return v, nil
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	v, err := newViper(false)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid configuration", errors.Join(errors.ErrInvalidConfig, err)).
			WithHint("run 'evolve config show' to inspect the effective settings")
	}
	return cfg, nil
}

// env is everything a command needs to work on one project.
type env struct {
	cfg      *config.Config
	root     string
	stateDir string
	logger   *logging.Logger
	store    *vcs.Store
	records  *record.Store
	styles   status.Styles
}

// newEnv loads the configuration, opens the log and checks that the project
// root is a git repository.
func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := cfg.Project.ResolveRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	stateDir := cfg.Paths.ResolveStateDir(root)

	logger, err := newLogger(cfg, stateDir)
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", cmd.Name())

	store := vcs.New(root, vcs.Options{
		SeedTag:      cfg.Evolution.SeedTag,
		TrunkBranch:  cfg.Evolution.TrunkBranch,
		ExcludePaths: cfg.Paths.ExcludePathspecs(root),
		Logger:       logger,
	})
	if err := store.CheckRepository(); err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		root:     root,
		stateDir: stateDir,
		logger:   logger,
		store:    store,
		records:  record.NewStore(cfg.Paths.ResolveGenerationsDir(root), logger),
		styles:   status.NewStyles(colorOutput(cmd)),
	}, nil
}

func newLogger(cfg *config.Config, stateDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(filepath.Join(stateDir, "logs"), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

// colorOutput reports whether cmd writes to a color-capable terminal.
func colorOutput(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && status.ColorEnabled(f)
}

func (e *env) close() {
	_ = e.logger.Close()
}

// lock takes the run lock for a command that touches the working tree.
func (e *env) lock(command string) (*runlock.Lock, error) {
	return runlock.Acquire(e.stateDir, command, e.logger)
}

// critic builds the configured critique backend.
func (e *env) critic(ctx context.Context) (critique.Critic, error) {
	return critique.New(ctx, e.cfg.Critic, e.logger)
}

// orchestrator wires the cycle collaborators. critic may be nil when only
// recorded critiques are used.
func (e *env) orchestrator(critic critique.Critic, listener evolve.Listener) (*evolve.Orchestrator, error) {
	agent, err := mutation.New(e.cfg.Mutator, e.root, e.logger)
	if err != nil {
		return nil, err
	}
	mutatorCfg := e.cfg.Mutator

	return evolve.New(evolve.Collaborators{
		Store:    e.store,
		Namer:    lineage.NewNamer(e.store),
		Critic:   critic,
		Records:  e.records,
		Mutator:  agent,
		Deployer: deploy.New(e.cfg.Deploy, e.root, e.logger),
		Prompt: func(c *critique.Critique) (string, error) {
			return mutation.PromptFor(c, mutatorCfg)
		},
	}, evolve.WithLogger(e.logger), evolve.WithListener(listener))
}

// capturesDir is where screenshots of the display are expected.
func (e *env) capturesDir() string {
	return e.cfg.Paths.ResolveCapturesDir(e.root)
}
