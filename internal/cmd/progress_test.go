package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/evolve"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/status"
)

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	listen := progressPrinter(&buf, status.NewStyles(false))

	listen(evolve.Event{Kind: evolve.EventStarted, Stage: evolve.StageBranchSetup})
	listen(evolve.Event{Kind: evolve.EventCompleted, Stage: evolve.StageBranchSetup, Detail: "evo-alpha-004 (created)"})
	listen(evolve.Event{Kind: evolve.EventStarted, Stage: evolve.StageCritique})
	listen(evolve.Event{Kind: evolve.EventSkipped, Stage: evolve.StageRecord, Detail: "critique reused"})
	listen(evolve.Event{Kind: evolve.EventFailed, Stage: evolve.StageDeploy,
		Err: errors.NewDeployError("build", "build failed", errors.ErrBuildFailed).WithOutput("line one\nline two")})

	want := []string{
		"  ✓ branch_setup evo-alpha-004 (created)",
		"  … critique     asking the critic",
		"  - record       critique reused",
		"  ✗ deploy       ",
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i, w := range want {
		if !strings.HasPrefix(lines[i], w) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], w)
		}
	}
	if strings.Contains(buf.String(), "line two") {
		t.Errorf("failure should print only the first line of the error:\n%s", buf.String())
	}
}

func TestPrintCritique(t *testing.T) {
	c := &critique.Critique{
		Scores: map[string]float64{
			critique.DimensionOrganicGrowth:       6,
			critique.DimensionLuminanceBalance:    7,
			critique.DimensionVisualInterest:      5,
			critique.DimensionDensityDistribution: 8,
		},
		OverallScore:         6.5,
		Critique:             "Roads read as a grid.",
		TechnicalSuggestions: []string{"branch the roads"},
	}

	var buf bytes.Buffer
	printCritique(&buf, status.NewStyles(false), c)
	out := buf.String()
	for _, want := range []string{"Overall 6.5/10", "organic_growth", "Roads read as a grid.", "• branch the roads"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "organic_growth") > strings.Index(out, "density_distribution") {
		t.Errorf("scores should follow rubric order:\n%s", out)
	}

	buf.Reset()
	degraded, _ := critique.Parse("no json here")
	printCritique(&buf, status.NewStyles(false), degraded)
	if !strings.Contains(buf.String(), "critique could not be parsed") {
		t.Errorf("degraded output:\n%s", buf.String())
	}
}

func TestShortHash(t *testing.T) {
	if got := shortHash("0123456789abcdef"); got != "0123456" {
		t.Errorf("shortHash() = %q", got)
	}
	if got := shortHash("abc"); got != "abc" {
		t.Errorf("shortHash() = %q", got)
	}
}

func TestReportFailure_PointsAtLogForInternalErrors(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), ".evolve")
	e := &env{cfg: config.Default(), stateDir: stateDir, styles: status.NewStyles(false)}
	logPath := filepath.Join(stateDir, "logs", "evolve.log")

	tests := []struct {
		name    string
		err     error
		wantLog bool
	}{
		{"internal error", fmt.Errorf("agent process vanished"), true},
		{"user-facing error", errors.NewVersionControlError("working tree has uncommitted changes", errors.ErrDirtyWorktree), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportFailure(&buf, e, &evolve.Result{Line: "alpha", Generation: 3, FailedStage: evolve.StagePreflight, Err: tt.err})

			out := buf.String()
			if !strings.Contains(out, "cycle stopped at preflight") {
				t.Errorf("output = %q", out)
			}
			if got := strings.Contains(out, logPath); got != tt.wantLog {
				t.Errorf("log pointer shown = %v, want %v:\n%s", got, tt.wantLog, out)
			}
		})
	}
}
