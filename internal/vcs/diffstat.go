package vcs

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// DiffStat summarizes a unified diff.
type DiffStat struct {
	Files   int `json:"files"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Empty reports whether the diff touched nothing.
func (d DiffStat) Empty() bool {
	return d.Files == 0
}

// String formats the stat the way it appears in generation commits:
// "3 files, +12/-4".
func (d DiffStat) String() string {
	noun := "files"
	if d.Files == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s, +%d/-%d", d.Files, noun, d.Added, d.Removed)
}

// ParseDiffStat computes a DiffStat from unified diff text as produced by
// git diff. Binary and mode-only changes count as a file with no lines.
func ParseDiffStat(patch []byte) (DiffStat, error) {
	if len(bytes.TrimSpace(patch)) == 0 {
		return DiffStat{}, nil
	}

	files, err := diff.NewMultiFileDiffReader(bytes.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return DiffStat{}, fmt.Errorf("failed to parse diff: %w", err)
	}

	var stat DiffStat
	for _, f := range files {
		stat.Files++
		for _, hunk := range f.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					stat.Added++
				case strings.HasPrefix(line, "-"):
					stat.Removed++
				}
			}
		}
	}
	return stat, nil
}
