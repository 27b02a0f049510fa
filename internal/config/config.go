package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
// (EVOLVE_CRITIC_BACKEND, EVOLVE_DEPLOY_SKIP_UPLOAD, ...).
const EnvPrefix = "EVOLVE"

// LocalConfigFile is the per-project config file looked up in the working directory.
const LocalConfigFile = ".evolve.yaml"

// Config represents the complete evolve configuration
type Config struct {
	Project   ProjectConfig   `mapstructure:"project" yaml:"project"`
	Evolution EvolutionConfig `mapstructure:"evolution" yaml:"evolution"`
	Critic    CriticConfig    `mapstructure:"critic" yaml:"critic"`
	Mutator   MutatorConfig   `mapstructure:"mutator" yaml:"mutator"`
	Deploy    DeployConfig    `mapstructure:"deploy" yaml:"deploy"`
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ProjectConfig locates the firmware repository being evolved
type ProjectConfig struct {
	// RootDir is the git repository root. Empty means the current directory.
	RootDir string `mapstructure:"root_dir" yaml:"root_dir"`
}

// EvolutionConfig controls lineage naming and ancestry
type EvolutionConfig struct {
	// DefaultLine is the evolution line used when --line is not given (default: "alpha")
	DefaultLine string `mapstructure:"default_line" yaml:"default_line"`
	// SeedTag is the tag marking generation 0 (default: "seed")
	SeedTag string `mapstructure:"seed_tag" yaml:"seed_tag"`
	// TrunkBranch is the parent of generation 1 when the seed tag is absent (default: "main")
	TrunkBranch string `mapstructure:"trunk_branch" yaml:"trunk_branch"`
	// ReuseRecordedCritique reuses an existing generation record instead of
	// querying the critic again. Off by default: a recorded critique describes
	// the code as it was, not as it is.
	ReuseRecordedCritique bool `mapstructure:"reuse_recorded_critique" yaml:"reuse_recorded_critique"`
}

// CriticConfig selects and configures the image critique backend
type CriticConfig struct {
	// Backend is "gemini" or "openai" (default: "gemini")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Model overrides the backend's default model
	Model string `mapstructure:"model" yaml:"model"`
	// APIKeyEnv names the environment variable holding the credential.
	// Empty selects the backend default (GEMINI_API_KEY / OPENAI_API_KEY).
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env"`
	// BaseURL overrides the API endpoint (proxies, local gateways)
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// TimeoutSeconds bounds a single critique request (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// MutatorConfig selects and configures the code-mutation agent
type MutatorConfig struct {
	// Backend is "claude" or "codex" (default: "claude")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Command overrides the agent executable name
	Command string `mapstructure:"command" yaml:"command"`
	// SkipPermissions passes the claude backend's permission-skip flag
	SkipPermissions bool `mapstructure:"skip_permissions" yaml:"skip_permissions"`
	// ApprovalMode is passed to the codex backend (default: "full-auto")
	ApprovalMode string `mapstructure:"approval_mode" yaml:"approval_mode"`
	// EditableFiles lists the files the agent may modify
	EditableFiles []string `mapstructure:"editable_files" yaml:"editable_files"`
	// Rules are hard constraints embedded in every mutation prompt
	Rules []string `mapstructure:"rules" yaml:"rules"`
	// TimeoutMinutes bounds a single mutation run (0 = no limit)
	TimeoutMinutes int `mapstructure:"timeout_minutes" yaml:"timeout_minutes"`
}

// DeployConfig controls the build/upload toolchain
type DeployConfig struct {
	// Command is the toolchain invocation prefix (default: "python -m platformio")
	Command string `mapstructure:"command" yaml:"command"`
	// Environment is the build target name (default: "tdisplay")
	Environment string `mapstructure:"environment" yaml:"environment"`
	// SkipUpload builds without flashing the device
	SkipUpload bool `mapstructure:"skip_upload" yaml:"skip_upload"`
}

// PathsConfig controls where evolve keeps its files. Relative paths resolve
// against the project root.
type PathsConfig struct {
	// StateDir holds records, logs and the run lock (default: ".evolve").
	// It is excluded from generation commits.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
	// CapturesDir is searched for the newest screenshot when no image is given
	// (default: ".evolve/captures")
	CapturesDir string `mapstructure:"captures_dir" yaml:"captures_dir"`
	// GenerationsDir holds one record per generation (default: ".evolve/generations")
	GenerationsDir string `mapstructure:"generations_dir" yaml:"generations_dir"`
}

// WatchConfig controls `evolve watch`
type WatchConfig struct {
	// SettleMs is how long a new capture must stay unchanged before it is used (default: 750)
	SettleMs int `mapstructure:"settle_ms" yaml:"settle_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logs are written (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the size at which the log file is rotated (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Evolution: EvolutionConfig{
			DefaultLine: "alpha",
			SeedTag:     "seed",
			TrunkBranch: "main",
		},
		Critic: CriticConfig{
			Backend:        "gemini",
			TimeoutSeconds: 120,
		},
		Mutator: MutatorConfig{
			Backend:         "claude",
			SkipPermissions: true,
			ApprovalMode:    "full-auto",
			EditableFiles:   []string{"src/main.cpp", "include/CitySim.h"},
			Rules: []string{
				"Use TFT_eSPI library functions only",
				"Keep within 240x135 resolution (landscape)",
				"Keep it purely algorithmic - no external assets",
				"Don't break the existing button controls or splash screen",
				"Make targeted changes based on the critique - don't rewrite everything",
				"Keep flash usage under 320KB",
			},
		},
		Deploy: DeployConfig{
			Command:     "python -m platformio",
			Environment: "tdisplay",
		},
		Paths: PathsConfig{
			StateDir:       ".evolve",
			CapturesDir:    filepath.Join(".evolve", "captures"),
			GenerationsDir: filepath.Join(".evolve", "generations"),
		},
		Watch: WatchConfig{
			SettleMs: 750,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// CriticTimeout returns the critique request timeout as a Duration
func (c *CriticConfig) CriticTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MutationTimeout returns the mutation timeout as a Duration (0 = no limit)
func (c *MutatorConfig) MutationTimeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// SettleDelay returns the watch settle delay as a Duration
func (c *WatchConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// ResolveRoot returns the absolute project root. An empty RootDir resolves to
// the current working directory.
func (p *ProjectConfig) ResolveRoot() (string, error) {
	root := p.RootDir
	if root == "" {
		return os.Getwd()
	}
	return filepath.Abs(expandHome(root))
}

// ResolveStateDir returns the state directory resolved against root.
func (p *PathsConfig) ResolveStateDir(root string) string {
	return resolvePath(root, p.StateDir)
}

// ResolveCapturesDir returns the captures directory resolved against root.
func (p *PathsConfig) ResolveCapturesDir(root string) string {
	return resolvePath(root, p.CapturesDir)
}

// ResolveGenerationsDir returns the generations directory resolved against root.
func (p *PathsConfig) ResolveGenerationsDir(root string) string {
	return resolvePath(root, p.GenerationsDir)
}

// ExcludePathspecs returns the directories evolve writes to that lie inside
// the repository, relative to root in forward-slash form. They must never be
// committed into a generation branch: checking out an older generation would
// otherwise drop newer records and captures. Directories nested in another
// entry are left out.
func (p *PathsConfig) ExcludePathspecs(root string) []string {
	var rels []string
	for _, dir := range []string{
		p.ResolveStateDir(root),
		p.ResolveGenerationsDir(root),
		p.ResolveCapturesDir(root),
	} {
		if rel := repoRelative(root, dir); rel != "" {
			rels = append(rels, rel)
		}
	}

	var specs []string
	for _, rel := range rels {
		if !coveredBy(rel, rels) && !slices.Contains(specs, rel) {
			specs = append(specs, rel)
		}
	}
	return specs
}

// repoRelative returns dir relative to root, or "" if it is root itself or
// lies outside it.
func repoRelative(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

// coveredBy reports whether rel lies strictly inside one of dirs.
func coveredBy(rel string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

func resolvePath(root, path string) string {
	path = expandHome(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path
}

// expandHome expands a leading ~ to the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// SetDefaults registers default values on v so that keys missing from the
// config file and environment still unmarshal to the defaults.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Project defaults
	v.SetDefault("project.root_dir", defaults.Project.RootDir)

	// Evolution defaults
	v.SetDefault("evolution.default_line", defaults.Evolution.DefaultLine)
	v.SetDefault("evolution.seed_tag", defaults.Evolution.SeedTag)
	v.SetDefault("evolution.trunk_branch", defaults.Evolution.TrunkBranch)
	v.SetDefault("evolution.reuse_recorded_critique", defaults.Evolution.ReuseRecordedCritique)

	// Critic defaults
	v.SetDefault("critic.backend", defaults.Critic.Backend)
	v.SetDefault("critic.model", defaults.Critic.Model)
	v.SetDefault("critic.api_key_env", defaults.Critic.APIKeyEnv)
	v.SetDefault("critic.base_url", defaults.Critic.BaseURL)
	v.SetDefault("critic.timeout_seconds", defaults.Critic.TimeoutSeconds)

	// Mutator defaults
	v.SetDefault("mutator.backend", defaults.Mutator.Backend)
	v.SetDefault("mutator.command", defaults.Mutator.Command)
	v.SetDefault("mutator.skip_permissions", defaults.Mutator.SkipPermissions)
	v.SetDefault("mutator.approval_mode", defaults.Mutator.ApprovalMode)
	v.SetDefault("mutator.editable_files", defaults.Mutator.EditableFiles)
	v.SetDefault("mutator.rules", defaults.Mutator.Rules)
	v.SetDefault("mutator.timeout_minutes", defaults.Mutator.TimeoutMinutes)

	// Deploy defaults
	v.SetDefault("deploy.command", defaults.Deploy.Command)
	v.SetDefault("deploy.environment", defaults.Deploy.Environment)
	v.SetDefault("deploy.skip_upload", defaults.Deploy.SkipUpload)

	// Paths defaults
	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	v.SetDefault("paths.captures_dir", defaults.Paths.CapturesDir)
	v.SetDefault("paths.generations_dir", defaults.Paths.GenerationsDir)

	// Watch defaults
	v.SetDefault("watch.settle_ms", defaults.Watch.SettleMs)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Setup prepares v for loading: defaults, env overrides and config search
// paths. An explicit cfgFile replaces the search paths.
func Setup(v *viper.Viper, cfgFile string) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())
}

// ReadInConfig reads the config file registered by Setup, then merges a
// project-local .evolve.yaml from dir if one exists. A missing user config
// is not an error; an explicit
// config file that cannot be read is.
func ReadInConfig(v *viper.Viper, dir string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	local := filepath.Join(dir, LocalConfigFile)
	if _, err := os.Stat(local); err == nil {
		v.SetConfigFile(local)
		if err := v.MergeInConfig(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "evolve")
	}
	// Fall back to ~/.config/evolve
	home, err := os.UserHomeDir()
	if err != nil {
		return ".evolve"
	}
	return filepath.Join(home, ".config", "evolve")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidCriticBackends returns the list of supported critique backends
func ValidCriticBackends() []string {
	return []string{"gemini", "openai"}
}

// ValidMutatorBackends returns the list of supported mutation backends
func ValidMutatorBackends() []string {
	return []string{"claude", "codex"}
}
