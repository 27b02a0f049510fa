package evolve

import (
	"strings"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// Stage is a state of the generation cycle.
type Stage string

const (
	// StagePreflight checks that every collaborator the cycle needs is usable.
	StagePreflight Stage = "preflight"
	// StageBranchSetup materializes the generation branch.
	StageBranchSetup Stage = "branch_setup"
	// StageCritique obtains the critique of the capture.
	StageCritique Stage = "critique"
	// StageRecord persists the generation record.
	StageRecord Stage = "record"
	// StageMutate runs the coding agent.
	StageMutate Stage = "mutate"
	// StageDeploy builds and uploads the firmware.
	StageDeploy Stage = "deploy"
	// StageCommit commits the generation.
	StageCommit Stage = "commit"
	// StageDone means the cycle completed.
	StageDone Stage = "done"
)

var stageOrder = map[Stage]int{
	StagePreflight:   0,
	StageBranchSetup: 1,
	StageCritique:    2,
	StageRecord:      3,
	StageMutate:      4,
	StageDeploy:      5,
	StageCommit:      6,
	StageDone:        7,
}

// Before reports whether s runs earlier in the cycle than other.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// ResumableStages lists the stages an interrupted cycle can be resumed from.
func ResumableStages() []Stage {
	return []Stage{StageMutate, StageDeploy, StageCommit}
}

// ParseResumeStage parses a --resume-from value. The empty string means a
// full cycle and parses to "".
func ParseResumeStage(s string) (Stage, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, stage := range ResumableStages() {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", errors.NewValidationError("resume stage must be one of mutate, deploy, commit").
		WithField("resume_from").
		WithValue(s)
}
