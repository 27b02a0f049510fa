package evolve

import (
	"context"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/vcs"
)

// VersionStore is the part of *vcs.Store the cycle drives.
type VersionStore interface {
	IsClean() (bool, error)
	BranchExists(name string) (bool, error)
	EnsureGenerationBranch(line string, number int) (branch string, created bool, err error)
	StageAndDiffStat() (vcs.DiffStat, error)
	CommitAll(message string) (vcs.CommitOutcome, error)
}

// Namer resolves generation numbers. *lineage.Namer implements it.
type Namer interface {
	LatestGeneration(line string) (int, error)
	NextGeneration(line string) (int, error)
}

// Recorder persists generation records. *record.Store implements it.
type Recorder interface {
	Save(line string, generation int, c *critique.Critique, runID string) (*record.Record, error)
	Load(line string, generation int) (*record.Record, error)
}

// Mutator rewrites the firmware sources from a prompt. *mutation.Agent
// implements it.
type Mutator interface {
	Mutate(ctx context.Context, prompt string) error
}

// Deployer builds and flashes the firmware. *deploy.Toolchain implements it.
type Deployer interface {
	Build(ctx context.Context) error
	Upload(ctx context.Context) error
}

// Checker is implemented by collaborators that can verify their external
// tools before a cycle starts.
type Checker interface {
	Check() error
}

// PromptFunc renders the mutation prompt for a critique.
type PromptFunc func(c *critique.Critique) (string, error)
