package evolve

import (
	"time"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/vcs"
)

// Request describes one cycle.
type Request struct {
	// ImagePath is the capture to critique. Not needed when the critique
	// comes from an existing record.
	ImagePath string
	Line      string
	// Generation is the generation to run. Zero selects the next generation,
	// or the latest one when resuming.
	Generation int
	// SkipUpload builds without flashing the device.
	SkipUpload bool
	// ReuseRecordedCritique uses the generation's existing record instead of
	// asking the critic again, when there is one.
	ReuseRecordedCritique bool
	// ResumeFrom re-enters an interrupted generation at mutate, deploy or
	// commit using its recorded critique. Empty runs the full cycle.
	ResumeFrom Stage
}

// Result is what a cycle produced. It is returned even when the cycle fails,
// holding everything obtained up to the failure.
type Result struct {
	Line       string `json:"line"`
	Generation int    `json:"generation"`
	Branch     string `json:"branch,omitempty"`
	// BranchCreated is false when an existing generation branch was resumed.
	BranchCreated bool   `json:"branch_created"`
	RunID         string `json:"run_id"`

	// Stage is the last stage entered.
	Stage Stage `json:"stage"`
	// FailedStage is set when the cycle halted.
	FailedStage Stage `json:"failed_stage,omitempty"`

	// Critique may be degraded (see critique.Critique.Degraded).
	Critique *critique.Critique `json:"critique,omitempty"`
	// CritiqueReused is true when the critique came from an existing record.
	CritiqueReused bool              `json:"critique_reused,omitempty"`
	Record         *record.Record    `json:"record,omitempty"`
	Diff           vcs.DiffStat      `json:"diff"`
	Commit         vcs.CommitOutcome `json:"commit"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Err error `json:"-"`
}

// Succeeded reports whether the cycle reached StageDone.
func (r *Result) Succeeded() bool {
	return r.Err == nil && r.Stage == StageDone
}

// Committed reports whether the cycle created a commit.
func (r *Result) Committed() bool {
	return r.Commit.Status == vcs.StatusCommitted
}

// Duration returns how long the cycle ran.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
