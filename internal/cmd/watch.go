package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/capture"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/evolve"
)

var (
	watchLine       string
	watchSkipUpload bool
	watchMax        int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a generation for every new capture",
	Long: `Watch the captures directory and run the next generation of a line each
time a new screenshot of the display lands there. Stops on the first failed
cycle, after --max cycles, or on Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchLine, "line", "l", "", "evolution line (default from evolution.default_line)")
	watchCmd.Flags().BoolVar(&watchSkipUpload, "skip-upload", false, "build the firmware but do not flash the device")
	watchCmd.Flags().IntVar(&watchMax, "max", 0, "stop after this many cycles (0 = no limit)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	line := watchLine
	if line == "" {
		line = e.cfg.Evolution.DefaultLine
	}

	lock, err := e.lock("evolve watch")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	w, err := capture.NewWatcher(e.capturesDir(), e.cfg.Watch.SettleDelay(), e.logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return watchLoop(ctx, e, cmd, w, line)
}

func watchLoop(ctx context.Context, e *env, cmd *cobra.Command, w *capture.Watcher, line string) error {
	out := cmd.OutOrStdout()
	st := e.styles

	for cycles := 0; watchMax == 0 || cycles < watchMax; cycles++ {
		fmt.Fprintf(out, "%s\n", st.Muted.Render(fmt.Sprintf("Waiting for a capture in %s (Ctrl+C to stop)", w.Dir())))
		image, err := w.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "Stopped.")
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "New capture: %s\n", image)

		gen, err := resolveGeneration(e, out, line, 0, false)
		if err != nil {
			return err
		}
		if _, err := runCycle(ctx, e, out, evolve.Request{
			ImagePath:  image,
			Line:       line,
			Generation: gen,
			SkipUpload: watchSkipUpload || e.cfg.Deploy.SkipUpload,
		}); err != nil {
			if errors.Is(err, errors.ErrCanceled) {
				fmt.Fprintln(out, "Stopped.")
				return nil
			}
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}
