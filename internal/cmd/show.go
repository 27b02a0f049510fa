package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
)

var showCmd = &cobra.Command{
	Use:   "show <line> [generation]",
	Short: "Print a generation record",
	Long: `Print the recorded critique of a generation as JSON. Without a generation
number the newest record of the line is shown.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	line := args[0]
	var rec *record.Record
	if len(args) == 2 {
		gen, err := strconv.Atoi(args[1])
		if err != nil || gen < 1 {
			return errors.NewValidationError("generation must be a positive integer").
				WithField("generation").
				WithValue(args[1])
		}
		rec, err = e.records.Load(line, gen)
		if err != nil {
			return err
		}
	} else {
		rec, err = e.records.Latest(line)
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.NewNotFoundError("generation record", line).WithCause(errors.ErrRecordNotFound)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
