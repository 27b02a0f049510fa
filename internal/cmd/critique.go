package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var critiqueCmd = &cobra.Command{
	Use:   "critique [image]",
	Short: "Critique a capture without mutating anything",
	Long: `Send a capture of the display to the configured critic and print the
critique as JSON. Nothing is recorded, committed or flashed.

Without an image argument the most recent capture is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCritique,
}

func init() {
	rootCmd.AddCommand(critiqueCmd)
}

func runCritique(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var image string
	if len(args) > 0 {
		image = args[0]
	}
	image, err = resolveImage(cmd, e, image)
	if err != nil {
		return err
	}
	return printCritiqueJSON(ctx, e, cmd.OutOrStdout(), image)
}

// printCritiqueJSON critiques image and writes the result as indented JSON.
// A critique that could not be parsed is still printed before its error is
// returned.
func printCritiqueJSON(ctx context.Context, e *env, out io.Writer, image string) error {
	critic, err := e.critic(ctx)
	if err != nil {
		return err
	}
	c, err := critic.Critique(ctx, image)
	if c != nil {
		data, merr := json.MarshalIndent(c, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to encode critique: %w", merr)
		}
		fmt.Fprintln(out, string(data))
	}
	return err
}
