package cmd

import (
	"github.com/spf13/cobra"

	configcmd "github.com/bneidlinger/t-display-cityscreensaver/internal/cmd/config"
)

var rootCmd = &cobra.Command{
	Use:   "evolve [image]",
	Short: "Evolve the city screensaver firmware one critiqued generation at a time",
	Long: `Evolve runs one generation of an evolution line: a vision model critiques a
capture of the display, a coding agent mutates the sketch from the critique,
the firmware is built and flashed, and the result is committed to its own
generation branch (evo-{line}-{NNN}).

Without an image argument the most recent capture is used.

Examples:
  evolve --line alpha night.png     # next generation of line alpha
  evolve --line beta --gen 1        # start line beta from the seed tag
  evolve --critique-only night.png  # print the critique and stop
  evolve --status                   # show all evolution lines`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runEvolve,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// cfgFile is the --config flag value.
var cfgFile string

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/evolve/config.yaml)")

	configcmd.Register(rootCmd, configLoader)
}

// configLoader lets the config subcommands share the root's config flag.
func configLoader() (*configcmd.Source, error) {
	v, err := newViper(true)
	if err != nil {
		return nil, err
	}
	return &configcmd.Source{Viper: v, ExplicitFile: cfgFile}, nil
}
