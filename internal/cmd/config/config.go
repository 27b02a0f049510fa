// Package config provides CLI commands for managing evolve configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/bneidlinger/t-display-cityscreensaver/internal/config"
)

// Wrapper functions for exec to allow testing
var execLookPath = exec.LookPath
var execCommand = exec.Command

// Source is the configuration the subcommands operate on.
type Source struct {
	// Viper holds defaults, environment overrides and every config file read.
	Viper *viper.Viper
	// ExplicitFile is the --config flag value, if any.
	ExplicitFile string
}

// Loader returns the current configuration source.
type Loader func() (*Source, error)

var load Loader

var localFlag bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify evolve configuration",
	Long: `View or modify evolve configuration.

Without arguments, displays the effective configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Keys use dot notation, e.g.:
  evolve config set evolution.default_line beta
  evolve config set critic.backend openai
  evolve config set deploy.skip_upload true
  evolve config set mutator.editable_files src/main.cpp,include/CitySim.h

List values are comma separated. Run 'evolve config show' to see every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long: `Create a config file holding every option at its default value.

By default the user config file (~/.config/evolve/config.yaml) is created.
With --local, a project file (.evolve.yaml) is created in the current
directory instead; its values override the user config.`,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in your editor",
	Long: `Open the config file in your preferred editor.

Uses $EDITOR environment variable, or falls back to common editors (vim, nano, vi).
If no config file exists, creates one with default values first.`,
	RunE: runConfigEdit,
}

var configResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Reset configuration to defaults",
	Long: `Reset configuration values to their defaults.

Without arguments, resets all configuration to defaults.
With a key argument, resets only that specific key.

Examples:
  evolve config reset                   # Reset all to defaults
  evolve config reset critic.backend    # Reset only critic.backend`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigReset,
}

func init() {
	for _, c := range []*cobra.Command{configSetCmd, configInitCmd, configEditCmd, configResetCmd} {
		c.Flags().BoolVar(&localFlag, "local", false, "use the project file ("+appconfig.LocalConfigFile+") instead of the user config")
	}

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configResetCmd)
}

// Register adds all config-related commands to the given parent command.
// loader supplies the configuration built from the parent's flags.
func Register(parent *cobra.Command, loader Loader) {
	load = loader
	parent.AddCommand(configCmd)
}

// defaultsViper holds only the registered defaults; it defines the set of
// valid keys and their types.
func defaultsViper() *viper.Viper {
	d := viper.New()
	appconfig.SetDefaults(d)
	return d
}

// targetFile is the file that set, reset, init and edit write to.
func targetFile(src *Source) (string, error) {
	if localFlag {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		return filepath.Join(cwd, appconfig.LocalConfigFile), nil
	}
	if src != nil && src.ExplicitFile != "" {
		return src.ExplicitFile, nil
	}
	return appconfig.ConfigFile(), nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	src, err := load()
	if err != nil {
		return err
	}
	cfg, err := appconfig.Load(src.Viper)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)
	if used := src.Viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// parseValue converts value to the type of key's default.
func parseValue(key, value string, def any) (any, error) {
	switch def.(type) {
	case bool:
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case int:
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return intVal, nil
	case []string:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return value, nil
	}
}

// writeKeys loads path (if it exists), applies values and writes it back.
func writeKeys(path string, values map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fileV := viper.New()
	fileV.SetConfigFile(path)
	fileV.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := fileV.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	for key, value := range values {
		fileV.Set(key, value)
	}
	if err := fileV.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	defaults := defaultsViper()
	if !slices.Contains(defaults.AllKeys(), key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'evolve config show' to see valid keys", key)
	}
	typedValue, err := parseValue(key, value, defaults.Get(key))
	if err != nil {
		return err
	}

	src, err := load()
	if err != nil {
		return err
	}
	// Reject values the loader would refuse before touching the file.
	src.Viper.Set(key, typedValue)
	if _, err := appconfig.Load(src.Viper); err != nil {
		return err
	}

	configFile, err := targetFile(src)
	if err != nil {
		return err
	}
	if err := writeKeys(configFile, map[string]any{key: typedValue}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

// defaultConfigFile renders every option at its default value.
func defaultConfigFile() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`# evolve configuration
#
# Every key can also be set through the environment, e.g.
# EVOLVE_CRITIC_BACKEND=openai for critic.backend.
#
# critic.backend:  ` + strings.Join(appconfig.ValidCriticBackends(), ", ") + `
# mutator.backend: ` + strings.Join(appconfig.ValidMutatorBackends(), ", ") + `
# logging.level:   ` + strings.Join(appconfig.ValidLogLevels(), ", ") + `

`)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(appconfig.Default()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	src, err := load()
	if err != nil {
		return err
	}
	configFile, err := targetFile(src)
	if err != nil {
		return err
	}

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'evolve config set' to modify values", configFile)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := defaultConfigFile()
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}
	if err := os.WriteFile(configFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize evolve's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	src, err := load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if used := src.Viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", appconfig.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", appconfig.ConfigFile())
	fmt.Fprintf(out, "  2. ./%s (project overrides)\n", appconfig.LocalConfigFile)
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_CRITIC_BACKEND)\n", appconfig.EnvPrefix, appconfig.EnvPrefix)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	src, err := load()
	if err != nil {
		return err
	}
	configFile, err := targetFile(src)
	if err != nil {
		return err
	}

	// Check if config file exists, if not create it
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "Config file doesn't exist, creating with defaults...")
		if err := runConfigInit(cmd, args); err != nil {
			return err
		}
	}

	// Find an editor
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		// Try common editors
		for _, e := range []string{"vim", "nano", "vi"} {
			if _, err := execLookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set $EDITOR environment variable")
	}

	editorCmd := execCommand(editor, configFile)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config file saved: %s\n", configFile)
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	defaults := defaultsViper()

	values := map[string]any{}
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, key := range defaults.AllKeys() {
			values[key] = defaults.Get(key)
		}
		fmt.Fprintln(out, "Reset all configuration to defaults.")
	} else {
		key := strings.ToLower(args[0])
		if !slices.Contains(defaults.AllKeys(), key) {
			return fmt.Errorf("unknown configuration key: %s\nRun 'evolve config show' to see valid keys", key)
		}
		values[key] = defaults.Get(key)
		fmt.Fprintf(out, "Reset %s to default: %v\n", key, values[key])
	}

	src, err := load()
	if err != nil {
		return err
	}
	configFile, err := targetFile(src)
	if err != nil {
		return err
	}
	if err := writeKeys(configFile, values); err != nil {
		return err
	}

	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}
