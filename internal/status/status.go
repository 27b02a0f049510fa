// Package status summarizes every evolution line of a repository: which
// lines exist, how far each has come, what the critic last thought of it and
// where the working tree currently stands. It only reads.
package status

import (
	"sort"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
)

// DefaultRecent is how many generations per line a summary lists.
const DefaultRecent = 5

// VersionReader is the read-only part of *vcs.Store a summary needs.
type VersionReader interface {
	ListBranches(pattern string) ([]string, error)
	CurrentBranch() (string, error)
	TagExists(name string) (bool, error)
}

// RecordReader is the read-only part of *record.Store a summary needs.
type RecordReader interface {
	ListLines() ([]string, error)
	ListGenerations(line string) ([]int, error)
	Load(line string, generation int) (*record.Record, error)
}

// Generation is one generation branch in a summary.
type Generation struct {
	Number  int    `json:"number"`
	Branch  string `json:"branch"`
	Current bool   `json:"current,omitempty"`
	// Recorded reports whether a generation record exists.
	Recorded bool `json:"recorded"`
}

// Line summarizes one evolution line.
type Line struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Latest int    `json:"latest"`
	// Recent lists up to DefaultRecent generations, newest first.
	Recent []Generation `json:"recent"`
	// LatestScore is the overall score of the newest generation with a usable
	// record; nil when there is none.
	LatestScore     *float64 `json:"latest_score,omitempty"`
	LatestScoredGen int      `json:"latest_scored_generation,omitempty"`
	RecordedCount   int      `json:"recorded_count"`
}

// Summary is the status of every evolution line.
type Summary struct {
	SeedTag    string `json:"seed_tag"`
	SeedExists bool   `json:"seed_exists"`
	Lines      []Line `json:"lines"`

	CurrentBranch string `json:"current_branch"`
	// CurrentLine and CurrentGeneration are set when the current branch is a
	// generation branch.
	CurrentLine       string `json:"current_line,omitempty"`
	CurrentGeneration int    `json:"current_generation,omitempty"`

	// RecordOnlyLines have generation records but no branches left.
	RecordOnlyLines []string `json:"record_only_lines,omitempty"`
}

// Empty reports whether no evolution branch exists yet.
func (s *Summary) Empty() bool {
	return len(s.Lines) == 0
}

// OnGeneration reports whether the working tree is on a generation branch.
func (s *Summary) OnGeneration() bool {
	return s.CurrentLine != ""
}

// Reporter builds summaries.
type Reporter struct {
	branches VersionReader
	records  RecordReader
	seedTag  string
	recent   int
}

// NewReporter creates a Reporter. records may be nil, which leaves scores
// out of the summary.
func NewReporter(branches VersionReader, records RecordReader, seedTag string) *Reporter {
	if seedTag == "" {
		seedTag = "seed"
	}
	return &Reporter{
		branches: branches,
		records:  records,
		seedTag:  seedTag,
		recent:   DefaultRecent,
	}
}

// Summarize reads the current state. Lines are sorted by name.
func (r *Reporter) Summarize() (*Summary, error) {
	seeded, err := r.branches.TagExists(r.seedTag)
	if err != nil {
		return nil, err
	}
	current, err := r.branches.CurrentBranch()
	if err != nil {
		return nil, err
	}
	names, err := r.branches.ListBranches(lineage.AllBranchesPattern)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		SeedTag:       r.seedTag,
		SeedExists:    seeded,
		CurrentBranch: current,
		Lines:         []Line{},
	}
	if line, number, ok := lineage.ParseBranch(current); ok {
		s.CurrentLine, s.CurrentGeneration = line, number
	}

	index := lineage.Index(names)
	lineNames := make([]string, 0, len(index))
	for name := range index {
		lineNames = append(lineNames, name)
	}
	sort.Strings(lineNames)

	for _, name := range lineNames {
		line, err := r.summarizeLine(name, index[name], current)
		if err != nil {
			return nil, err
		}
		s.Lines = append(s.Lines, line)
	}

	if r.records != nil {
		recordLines, err := r.records.ListLines()
		if err != nil {
			return nil, err
		}
		for _, name := range recordLines {
			if _, ok := index[name]; !ok {
				s.RecordOnlyLines = append(s.RecordOnlyLines, name)
			}
		}
	}
	return s, nil
}

func (r *Reporter) summarizeLine(name string, numbers []int, current string) (Line, error) {
	line := Line{
		Name:   name,
		Count:  len(numbers),
		Latest: numbers[len(numbers)-1],
	}

	recorded := map[int]bool{}
	if r.records != nil {
		gens, err := r.records.ListGenerations(name)
		if err != nil {
			return Line{}, err
		}
		for _, g := range gens {
			recorded[g] = true
		}
		line.RecordedCount = len(gens)

		// Newest usable record wins. Degraded and torn records carry no score.
		for i := len(gens) - 1; i >= 0; i-- {
			rec, err := r.records.Load(name, gens[i])
			if err != nil || rec.Critique == nil || rec.Critique.Degraded() {
				continue
			}
			score := rec.Critique.OverallScore
			line.LatestScore = &score
			line.LatestScoredGen = gens[i]
			break
		}
	}

	for i := len(numbers) - 1; i >= 0 && len(line.Recent) < r.recent; i-- {
		branch := lineage.BranchName(name, numbers[i])
		line.Recent = append(line.Recent, Generation{
			Number:   numbers[i],
			Branch:   branch,
			Current:  branch == current,
			Recorded: recorded[numbers[i]],
		})
	}
	return line, nil
}
