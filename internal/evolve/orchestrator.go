// Package evolve drives one generation cycle of an evolution line:
//
//	branch_setup → critique → record → mutate → deploy → commit → done
//
// Any stage may fail, which halts the cycle. Run always returns a Result
// holding whatever the cycle produced before the failure, so a critique
// obtained before a failed build is not lost. Nothing is retried; the
// operator decides whether to rerun a stage (see Request.ResumeFrom).
//
// Stages run strictly one after another. The working tree and the device are
// singletons, so callers must not run two cycles against one repository at
// the same time (see package runlock).
package evolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// Collaborators are the components a cycle sequences. Critic may be nil when
// the orchestrator is only used to resume generations that have a record.
type Collaborators struct {
	Store    VersionStore
	Namer    Namer
	Critic   critique.Critic
	Records  Recorder
	Mutator  Mutator
	Deployer Deployer
	Prompt   PromptFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithListener receives stage events, e.g. for console progress.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) {
		o.listener = l
	}
}

// WithClock replaces time.Now for Result timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs generation cycles.
type Orchestrator struct {
	c        Collaborators
	logger   *logging.Logger
	listener Listener
	now      func() time.Time
}

// New creates an Orchestrator. Every collaborator except Critic is required.
func New(c Collaborators, opts ...Option) (*Orchestrator, error) {
	var missing []string
	if c.Store == nil {
		missing = append(missing, "Store")
	}
	if c.Namer == nil {
		missing = append(missing, "Namer")
	}
	if c.Records == nil {
		missing = append(missing, "Records")
	}
	if c.Mutator == nil {
		missing = append(missing, "Mutator")
	}
	if c.Deployer == nil {
		missing = append(missing, "Deployer")
	}
	if c.Prompt == nil {
		missing = append(missing, "Prompt")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("evolve: missing collaborators: %s", strings.Join(missing, ", "))
	}

	o := &Orchestrator{
		c:      c,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one cycle. The returned Result is never nil; its Err equals
// the returned error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		Line:       req.Line,
		Generation: req.Generation,
		RunID:      uuid.NewString(),
		StartedAt:  o.now(),
	}
	logger := o.logger.WithLine(req.Line).WithRun(res.RunID)

	err := o.run(ctx, req, res, logger)
	res.FinishedAt = o.now()

	if err != nil {
		res.Err = err
		res.FailedStage = res.Stage
		o.emit(Event{Kind: EventFailed, Stage: res.Stage, Err: err})
		logger.Error("cycle failed",
			"generation", res.Generation,
			"stage", string(res.Stage),
			"severity", errors.GetSeverity(err).String(),
			"recoverable", errors.IsRecoverable(err),
			"error", err,
		)
		return res, err
	}

	res.Stage = StageDone
	logger.Info("cycle complete",
		"generation", res.Generation,
		"branch", res.Branch,
		"commit", string(res.Commit.Status),
		"duration_ms", res.Duration().Milliseconds(),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, res *Result, logger *logging.Logger) error {
	// Collaborators are bounded by their own timeouts. Cancellation only
	// takes effect between stages, so a flash is never cut off halfway.
	stageCtx := context.WithoutCancel(ctx)

	if err := o.enter(ctx, res, StagePreflight); err != nil {
		return err
	}
	if err := o.validate(req); err != nil {
		return err
	}
	if err := o.preflight(req); err != nil {
		return err
	}
	if req.ResumeFrom == "" {
		// A resumed generation is expected to carry the interrupted changes
		clean, err := o.c.Store.IsClean()
		if err != nil {
			return err
		}
		if !clean {
			return errors.NewVersionControlError(
				"working tree has uncommitted changes; commit or discard them, or resume the interrupted generation",
				errors.ErrDirtyWorktree).
				WithSeverity(errors.SeverityWarning)
		}
	}
	if res.Generation == 0 {
		n, err := o.resolveGeneration(req)
		if err != nil {
			return err
		}
		res.Generation = n
	}
	logger = logger.WithGeneration(res.Generation)
	o.complete(StagePreflight, fmt.Sprintf("generation %d", res.Generation))

	// branch_setup
	if err := o.enter(ctx, res, StageBranchSetup); err != nil {
		return err
	}
	if req.ResumeFrom != "" {
		branch := lineage.BranchName(req.Line, res.Generation)
		exists, err := o.c.Store.BranchExists(branch)
		if err != nil {
			return err
		}
		if !exists {
			return errors.NewVersionControlError("cannot resume a generation without a branch", errors.ErrBranchNotFound).
				WithBranch(branch)
		}
	}
	branch, created, err := o.c.Store.EnsureGenerationBranch(req.Line, res.Generation)
	if err != nil {
		return err
	}
	res.Branch, res.BranchCreated = branch, created
	logger.Info("generation branch ready", "branch", branch, "created", created)
	o.complete(StageBranchSetup, branch)

	// critique
	if err := o.enter(ctx, res, StageCritique); err != nil {
		return err
	}
	c, err := o.obtainCritique(stageCtx, req, res, logger)
	if c != nil {
		res.Critique = c
	}
	if err != nil {
		var parseErr *errors.CritiqueParseError
		if c != nil && errors.As(err, &parseErr) {
			// Keep the raw answer; the operator may still act on it
			rec, saveErr := o.c.Records.Save(req.Line, res.Generation, c, res.RunID)
			if saveErr != nil {
				return errors.Join(err, saveErr)
			}
			res.Record = rec
			logger.Warn("degraded critique recorded", "reason", c.ParseError)
		}
		return err
	}
	if res.CritiqueReused {
		o.complete(StageCritique, "reused recorded critique, overall "+critique.FormatScore(c.OverallScore))
	} else {
		o.complete(StageCritique, "overall "+critique.FormatScore(c.OverallScore))
	}

	// record
	if res.CritiqueReused {
		o.skip(StageRecord, "already recorded")
	} else {
		if err := o.enter(ctx, res, StageRecord); err != nil {
			return err
		}
		rec, err := o.c.Records.Save(req.Line, res.Generation, c, res.RunID)
		if err != nil {
			return err
		}
		res.Record = rec
		o.complete(StageRecord, "")
	}

	// mutate
	if runs(req.ResumeFrom, StageMutate) {
		if err := o.enter(ctx, res, StageMutate); err != nil {
			return err
		}
		prompt, err := o.c.Prompt(c)
		if err != nil {
			return err
		}
		if err := o.c.Mutator.Mutate(stageCtx, prompt); err != nil {
			return err
		}
		o.complete(StageMutate, "")
	} else {
		o.skip(StageMutate, "resuming from "+string(req.ResumeFrom))
	}

	// deploy
	if runs(req.ResumeFrom, StageDeploy) {
		if err := o.enter(ctx, res, StageDeploy); err != nil {
			return err
		}
		if err := o.c.Deployer.Build(stageCtx); err != nil {
			return err
		}
		detail := "built and uploaded"
		if req.SkipUpload {
			detail = "built, upload skipped"
			logger.Info("upload skipped")
		} else if err := o.c.Deployer.Upload(stageCtx); err != nil {
			return err
		}
		o.complete(StageDeploy, detail)
	} else {
		o.skip(StageDeploy, "resuming from "+string(req.ResumeFrom))
	}

	// commit
	if err := o.enter(ctx, res, StageCommit); err != nil {
		return err
	}
	diff, err := o.c.Store.StageAndDiffStat()
	if err != nil {
		return err
	}
	res.Diff = diff

	outcome, err := o.c.Store.CommitAll(CommitMessage(req.Line, res.Generation, c, diff))
	if err != nil {
		return err
	}
	res.Commit = outcome
	if outcome.Hash != "" {
		o.complete(StageCommit, shortHash(outcome.Hash)+" "+diff.String())
	} else {
		o.complete(StageCommit, "nothing to commit")
	}
	return nil
}

func (o *Orchestrator) validate(req Request) error {
	if err := lineage.ValidateLine(req.Line); err != nil {
		return err
	}
	if req.Generation < 0 {
		return errors.NewValidationError("generation must not be negative").
			WithField("generation").
			WithValue(req.Generation)
	}
	if req.ResumeFrom != "" {
		if _, err := ParseResumeStage(string(req.ResumeFrom)); err != nil {
			return err
		}
	}
	return nil
}

// preflight runs the Check of every collaborator the request will use.
func (o *Orchestrator) preflight(req Request) error {
	var needed []any
	if req.ResumeFrom == "" && o.c.Critic != nil {
		needed = append(needed, o.c.Critic)
	}
	if runs(req.ResumeFrom, StageMutate) {
		needed = append(needed, o.c.Mutator)
	}
	if runs(req.ResumeFrom, StageDeploy) {
		needed = append(needed, o.c.Deployer)
	}
	for _, collaborator := range needed {
		if checker, ok := collaborator.(Checker); ok {
			if err := checker.Check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveGeneration picks the next generation, or the latest one when
// resuming.
func (o *Orchestrator) resolveGeneration(req Request) (int, error) {
	if req.ResumeFrom == "" {
		return o.c.Namer.NextGeneration(req.Line)
	}
	latest, err := o.c.Namer.LatestGeneration(req.Line)
	if err != nil {
		return 0, err
	}
	if latest == 0 {
		return 0, errors.NewNotFoundError("generation", req.Line).
			WithCause(errors.New("line has no generation to resume"))
	}
	return latest, nil
}

// obtainCritique returns the critique the cycle works with: the recorded
// one when resuming or when reuse was asked for and a usable record exists,
// a fresh one from the critic otherwise.
func (o *Orchestrator) obtainCritique(ctx context.Context, req Request, res *Result, logger *logging.Logger) (*critique.Critique, error) {
	if req.ResumeFrom != "" || req.ReuseRecordedCritique {
		rec, err := o.c.Records.Load(req.Line, res.Generation)
		switch {
		case err == nil && rec.Critique != nil && !rec.Critique.Degraded():
			res.Record = rec
			res.CritiqueReused = true
			logger.Info("reusing recorded critique", "recorded_at", rec.Timestamp)
			return rec.Critique, nil
		case req.ResumeFrom != "" && err != nil:
			return nil, errors.Wrapf(err, "cannot resume generation %d", res.Generation)
		case req.ResumeFrom != "":
			return nil, errors.NewValidationError("recorded critique is degraded; rerun the full cycle").
				WithField("critique")
		case err != nil && !errors.Is(err, errors.ErrRecordNotFound):
			return nil, err
		}
		logger.Info("no usable recorded critique, asking the critic")
	}

	if o.c.Critic == nil {
		return nil, errors.NewConfigurationError("no critic configured", errors.ErrInvalidConfig).
			WithSetting("critic.backend")
	}
	if req.ImagePath == "" {
		return nil, errors.NewValidationError("an image is required to critique").
			WithField("image")
	}

	logger.Info("requesting critique", "critic", o.c.Critic.Name(), "image", req.ImagePath)
	return o.c.Critic.Critique(ctx, req.ImagePath)
}

// enter moves the cycle to stage, refusing when ctx is done. A stage that
// already started always runs to completion, since its collaborators only
// see a context without cancellation.
func (o *Orchestrator) enter(ctx context.Context, res *Result, stage Stage) error {
	res.Stage = stage
	if err := ctx.Err(); err != nil {
		return errors.Join(errors.ErrCanceled, err)
	}
	o.emit(Event{Kind: EventStarted, Stage: stage})
	return nil
}

func (o *Orchestrator) complete(stage Stage, detail string) {
	o.emit(Event{Kind: EventCompleted, Stage: stage, Detail: detail})
}

func (o *Orchestrator) skip(stage Stage, detail string) {
	o.emit(Event{Kind: EventSkipped, Stage: stage, Detail: detail})
}

func (o *Orchestrator) emit(e Event) {
	if o.listener != nil {
		o.listener(e)
	}
}

// runs reports whether stage executes when resuming from `from`.
func runs(from, stage Stage) bool {
	return from == "" || !stage.Before(from)
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
