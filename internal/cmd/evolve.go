package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/capture"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/evolve"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

var (
	lineFlag          string
	genFlag           int
	critiqueOnlyFlag  bool
	skipUploadFlag    bool
	statusFlag        bool
	reuseCritiqueFlag bool
	resumeFromFlag    string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&lineFlag, "line", "l", "", "evolution line (default from evolution.default_line)")
	flags.IntVarP(&genFlag, "gen", "g", 0, "generation number (default: next generation of the line)")
	flags.BoolVar(&critiqueOnlyFlag, "critique-only", false, "print the critique as JSON and stop")
	flags.BoolVar(&skipUploadFlag, "skip-upload", false, "build the firmware but do not flash the device")
	flags.BoolVar(&skipUploadFlag, "skip-flash", false, "alias for --skip-upload")
	_ = flags.MarkHidden("skip-flash")
	flags.BoolVar(&statusFlag, "status", false, "show all evolution lines and exit")
	flags.BoolVar(&reuseCritiqueFlag, "reuse-critique", false, "use the generation's recorded critique instead of asking the critic again")
	flags.StringVar(&resumeFromFlag, "resume-from", "", "re-enter an interrupted generation at mutate, deploy or commit")
}

func runEvolve(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	if statusFlag {
		return renderStatus(e, out)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var image string
	if len(args) > 0 {
		image = args[0]
	}

	if critiqueOnlyFlag {
		image, err = resolveImage(cmd, e, image)
		if err != nil {
			return err
		}
		return printCritiqueJSON(ctx, e, out, image)
	}

	resume, err := evolve.ParseResumeStage(resumeFromFlag)
	if err != nil {
		return err
	}
	line := lineFlag
	if line == "" {
		line = e.cfg.Evolution.DefaultLine
	}

	// A resumed generation works from its recorded critique.
	if resume == "" {
		image, err = resolveImage(cmd, e, image)
		if err != nil {
			return err
		}
	}

	// Generation detection reads the branches, so it runs under the lock
	lock, err := e.lock("evolve")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	gen, err := resolveGeneration(e, out, line, genFlag, resume != "")
	if err != nil {
		return err
	}

	res, err := runCycle(ctx, e, out, evolve.Request{
		ImagePath:             image,
		Line:                  line,
		Generation:            gen,
		SkipUpload:            skipUploadFlag || e.cfg.Deploy.SkipUpload,
		ReuseRecordedCritique: reuseCritiqueFlag || e.cfg.Evolution.ReuseRecordedCritique,
		ResumeFrom:            resume,
	})
	if err != nil {
		return err
	}
	if res.Critique != nil && !res.CritiqueReused {
		printCritique(out, e.styles, res.Critique)
	}
	fmt.Fprintf(out, "\nNext: capture the display, then run:\n  evolve --line %s --gen %d <new_image>\n", res.Line, res.Generation+1)
	return nil
}

// runCycle runs one generation with console progress and prints the outcome.
func runCycle(ctx context.Context, e *env, out io.Writer, req evolve.Request) (*evolve.Result, error) {
	var critic critique.Critic
	if req.ResumeFrom == "" {
		c, err := e.critic(ctx)
		if err != nil {
			return nil, err
		}
		critic = c
	}
	orch, err := e.orchestrator(critic, progressPrinter(out, e.styles))
	if err != nil {
		return nil, err
	}

	st := e.styles
	fmt.Fprintf(out, "%s\n", st.Title.Render(fmt.Sprintf("Evolving %s, generation %d", req.Line, req.Generation)))
	if req.ImagePath != "" {
		fmt.Fprintf(out, "%s\n", st.Muted.Render("Image: "+req.ImagePath))
	}
	fmt.Fprintln(out)

	res, err := orch.Run(ctx, req)
	if err != nil {
		reportFailure(out, e, res)
		return res, err
	}

	fmt.Fprintln(out)
	if res.Committed() {
		fmt.Fprintf(out, "%s Generation %d committed on %s (%s)\n",
			st.Success.Render("✓"), res.Generation, st.Accent.Render(res.Branch), shortHash(res.Commit.Hash))
	} else {
		fmt.Fprintf(out, "%s Nothing to commit; %s is unchanged\n", st.Warning.Render("!"), st.Accent.Render(res.Branch))
	}
	return res, nil
}

// reportFailure tells the operator where the cycle stopped and how to pick
// it up again.
func reportFailure(out io.Writer, e *env, res *evolve.Result) {
	if res == nil || res.FailedStage == "" {
		return
	}
	st := e.styles
	fmt.Fprintf(out, "\n%s cycle stopped at %s\n", st.Error.Render("✗"), res.FailedStage)
	if !errors.IsUserFacing(res.Err) && e.cfg.Logging.Enabled {
		fmt.Fprintf(out, "%s\n", st.Muted.Render("Details are in "+filepath.Join(e.stateDir, "logs", logging.LogFileName)))
	}

	if res.Critique.Degraded() {
		fmt.Fprintf(out, "%s\n", st.Muted.Render("The raw response was kept in "+e.records.Path(res.Line, res.Generation)))
		return
	}
	resumable := false
	for _, s := range evolve.ResumableStages() {
		if s == res.FailedStage {
			resumable = true
		}
	}
	if resumable && (res.Record != nil || res.CritiqueReused) {
		fmt.Fprintf(out, "%s\n", st.Muted.Render(fmt.Sprintf("Resume with: evolve --line %s --gen %d --resume-from %s",
			res.Line, res.Generation, res.FailedStage)))
	}
}

// resolveImage returns image, or the most recent capture when image is empty.
func resolveImage(cmd *cobra.Command, e *env, image string) (string, error) {
	out := cmd.OutOrStdout()
	if image == "" {
		dir := e.capturesDir()
		latest, err := capture.Latest(dir)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\nPlace screenshots in: %s\n", cmd.UseLine(), dir)
			return "", err
		}
		fmt.Fprintf(out, "Using most recent capture: %s\n", latest)
		return latest, nil
	}
	if _, err := os.Stat(image); err != nil {
		return "", errors.NewNotFoundError("image", image).WithCause(err)
	}
	return image, nil
}

// resolveGeneration returns gen, or the generation a cycle on line would pick
// when gen is zero.
func resolveGeneration(e *env, out io.Writer, line string, gen int, resuming bool) (int, error) {
	if gen != 0 {
		return gen, nil
	}
	if err := lineage.ValidateLine(line); err != nil {
		return 0, err
	}
	namer := lineage.NewNamer(e.store)
	var err error
	if resuming {
		gen, err = namer.LatestGeneration(line)
	} else {
		gen, err = namer.NextGeneration(line)
	}
	if err != nil {
		return 0, err
	}
	if gen == 0 {
		return 0, errors.NewNotFoundError("generation branch", lineage.BranchPattern(line))
	}
	fmt.Fprintf(out, "Auto-detected generation: %d\n", gen)
	return gen, nil
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
