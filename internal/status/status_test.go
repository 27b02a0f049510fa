package status

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/testutil"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/vcs"
)

func scored(overall float64) *critique.Critique {
	return &critique.Critique{
		Scores: map[string]float64{
			critique.DimensionOrganicGrowth:       5,
			critique.DimensionLuminanceBalance:    5,
			critique.DimensionVisualInterest:      5,
			critique.DimensionDensityDistribution: 5,
		},
		OverallScore: overall,
		Critique:     "ok",
	}
}

type statusRepo struct {
	repo    string
	store   *vcs.Store
	records *record.Store
}

func setupStatusRepo(t *testing.T) *statusRepo {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repo := testutil.SetupFirmwareRepo(t)
	return &statusRepo{
		repo:    repo,
		store:   vcs.New(repo, vcs.Options{}),
		records: record.NewStore(filepath.Join(t.TempDir(), "generations"), nil),
	}
}

func TestSummarize_NoBranches(t *testing.T) {
	r := setupStatusRepo(t)

	s, err := NewReporter(r.store, r.records, "seed").Summarize()
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !s.Empty() || s.Lines == nil {
		t.Errorf("Lines = %#v, want an explicit empty list", s.Lines)
	}
	if s.SeedExists {
		t.Error("SeedExists = true without a seed tag")
	}
	if s.CurrentBranch != "main" || s.OnGeneration() {
		t.Errorf("current = %q (on generation %v)", s.CurrentBranch, s.OnGeneration())
	}

	var out bytes.Buffer
	if err := NewRenderer(&out, NewStyles(false), "evolve").Render(s); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`seed tag "seed" missing`,
		"No evolution branches yet.",
		"Start with: evolve --line alpha <image>",
		"Current branch: main",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestSummarize_Lines(t *testing.T) {
	r := setupStatusRepo(t)
	testutil.CreateTag(t, r.repo, "seed")
	for i := 1; i <= 7; i++ {
		testutil.CreateBranch(t, r.repo, lineage.BranchName("alpha", i))
	}
	testutil.CreateBranch(t, r.repo, "evo-beta-001")
	testutil.CreateBranch(t, r.repo, "evo-beta-oops")
	testutil.CheckoutBranch(t, r.repo, "evo-alpha-006")

	for gen, overall := range map[int]float64{5: 6.5, 6: 7} {
		if _, err := r.records.Save("alpha", gen, scored(overall), ""); err != nil {
			t.Fatal(err)
		}
	}
	degraded, _ := critique.Parse("garbage")
	if _, err := r.records.Save("alpha", 7, degraded, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.records.Save("gamma", 1, scored(3), ""); err != nil {
		t.Fatal(err)
	}

	s, err := NewReporter(r.store, r.records, "seed").Summarize()
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if !s.SeedExists {
		t.Error("SeedExists = false")
	}
	if s.CurrentLine != "alpha" || s.CurrentGeneration != 6 {
		t.Errorf("current = %s/%d, want alpha/6", s.CurrentLine, s.CurrentGeneration)
	}
	if len(s.Lines) != 2 || s.Lines[0].Name != "alpha" || s.Lines[1].Name != "beta" {
		t.Fatalf("Lines = %+v, want alpha and beta", s.Lines)
	}

	alpha := s.Lines[0]
	if alpha.Count != 7 || alpha.Latest != 7 || alpha.RecordedCount != 3 {
		t.Errorf("alpha = count %d latest %d recorded %d", alpha.Count, alpha.Latest, alpha.RecordedCount)
	}
	if alpha.LatestScore == nil || *alpha.LatestScore != 7 || alpha.LatestScoredGen != 6 {
		t.Errorf("alpha latest score = %v at %d, want 7 at 6 (gen 7 is degraded)", alpha.LatestScore, alpha.LatestScoredGen)
	}

	want := []Generation{
		{Number: 7, Branch: "evo-alpha-007", Recorded: true},
		{Number: 6, Branch: "evo-alpha-006", Current: true, Recorded: true},
		{Number: 5, Branch: "evo-alpha-005", Recorded: true},
		{Number: 4, Branch: "evo-alpha-004"},
		{Number: 3, Branch: "evo-alpha-003"},
	}
	if diff := cmp.Diff(want, alpha.Recent); diff != "" {
		t.Errorf("alpha.Recent mismatch (-want +got):\n%s", diff)
	}

	beta := s.Lines[1]
	if beta.Count != 1 || beta.LatestScore != nil {
		t.Errorf("beta = %+v, malformed branch should be skipped and no score present", beta)
	}
	if diff := cmp.Diff([]string{"gamma"}, s.RecordOnlyLines); diff != "" {
		t.Errorf("RecordOnlyLines mismatch (-want +got):\n%s", diff)
	}

	var out bytes.Buffer
	if err := NewRenderer(&out, NewStyles(false), "").Render(s); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`seed tag "seed" present`,
		"Evolution lines (2):",
		"alpha: 7 generations (latest: 7, last score 7/10 at gen 006)",
		"└─ gen 006 ← current",
		"└─ gen 004 (no record)",
		"beta: 1 generation (latest: 1)",
		"Records without branches: gamma",
		"Current branch: evo-alpha-006 (alpha generation 6)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "gen 002") {
		t.Errorf("only the five newest generations should be listed:\n%s", out.String())
	}
}

func TestSummarize_WithoutRecords(t *testing.T) {
	r := setupStatusRepo(t)
	testutil.CreateBranch(t, r.repo, "evo-alpha-001")

	s, err := NewReporter(r.store, nil, "").Summarize()
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if s.SeedTag != "seed" || len(s.Lines) != 1 || s.Lines[0].LatestScore != nil {
		t.Errorf("Summary = %+v", s)
	}
}

func TestNewStyles_Plain(t *testing.T) {
	st := NewStyles(false)
	if got := st.Error.Render("boom"); got != "boom" {
		t.Errorf("plain style rendered %q", got)
	}
}
