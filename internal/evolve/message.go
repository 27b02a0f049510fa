package evolve

import (
	"fmt"
	"strings"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/vcs"
)

// CommitMarker ends every generation commit message so automated commits can
// be found with git log --grep.
const CommitMarker = "[evolve] automated generation commit"

// Trailer keys of generation commits.
const (
	TrailerLine       = "Evolution-Line"
	TrailerGeneration = "Evolution-Generation"
)

// CommitMessage builds the message of a generation commit.
func CommitMessage(line string, generation int, c *critique.Critique, diff vcs.DiffStat) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generation %d (%s line)\n\n", generation, line)

	if c != nil {
		fmt.Fprintf(&b, "Scores: %s\n", c.ScoresJSON())
		fmt.Fprintf(&b, "Overall: %s/10\n\n", critique.FormatScore(c.OverallScore))
		if text := strings.TrimSpace(c.Critique); text != "" {
			fmt.Fprintf(&b, "Critique: %s\n\n", text)
		}
	}

	fmt.Fprintf(&b, "Changes: %s\n\n", diff)

	fmt.Fprintf(&b, "%s: %s\n", TrailerLine, line)
	fmt.Fprintf(&b, "%s: %d\n", TrailerGeneration, generation)
	b.WriteString(CommitMarker)

	return b.String()
}
