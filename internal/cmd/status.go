package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/runlock"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show all evolution lines",
	Long: `List every evolution line with its generation count, the most recent
generations and the last recorded score, plus the branch the working tree is on.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	if statusJSON {
		summary, err := status.NewReporter(e.store, e.records, e.cfg.Evolution.SeedTag).Summarize()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	return renderStatus(e, out)
}

func renderStatus(e *env, out io.Writer) error {
	summary, err := status.NewReporter(e.store, e.records, e.cfg.Evolution.SeedTag).Summarize()
	if err != nil {
		return err
	}
	if err := status.NewRenderer(out, e.styles, "evolve").Render(summary); err != nil {
		return err
	}
	if holder, ok := runlock.Holder(e.stateDir); ok {
		fmt.Fprintf(out, "%s\n", e.styles.Warning.Render(fmt.Sprintf(
			"A cycle is running: %s (pid %d) since %s", holder.Command, holder.PID, holder.StartedAt.Format("15:04:05"))))
	}
	return nil
}
