// Package lineage is the single source of truth for how evolution lines and
// generations map onto branch names.
//
// A generation of line L with number N lives on branch evo-L-NNN, where NNN
// is N zero-padded to three digits (wider numbers are written in full).
// Generation 0 is the seed marker and never has a branch of its own.
package lineage

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// BranchPrefix starts every generation branch name.
const BranchPrefix = "evo"

// AllBranchesPattern matches the branches of every line.
const AllBranchesPattern = BranchPrefix + "-*"

var lineRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// ValidateLine checks that line can be embedded in a branch name.
func ValidateLine(line string) error {
	if !lineRegex.MatchString(line) {
		return errors.NewValidationError("line must contain only letters, digits, underscore and hyphen, and not start with a hyphen").
			WithField("line").
			WithValue(line)
	}
	return nil
}

// BranchName returns the branch of generation number in line.
func BranchName(line string, number int) string {
	return fmt.Sprintf("%s-%s-%03d", BranchPrefix, line, number)
}

// BranchPattern returns a git glob matching the branches of line. The glob
// is wider than the line's namespace (evo-a-* also matches evo-a-b-001), so
// callers filter the results with ParseBranch.
func BranchPattern(line string) string {
	return fmt.Sprintf("%s-%s-*", BranchPrefix, line)
}

// ParseBranch splits a generation branch name into its line and number.
// ok is false for anything BranchName could not have produced.
func ParseBranch(name string) (line string, number int, ok bool) {
	rest, found := strings.CutPrefix(name, BranchPrefix+"-")
	if !found {
		return "", 0, false
	}

	idx := strings.LastIndexByte(rest, '-')
	if idx <= 0 {
		return "", 0, false
	}
	line, suffix := rest[:idx], rest[idx+1:]

	if len(suffix) < 3 || !isDigits(suffix) || !lineRegex.MatchString(line) {
		return "", 0, false
	}
	number, err := strconv.Atoi(suffix)
	if err != nil || number < 1 {
		return "", 0, false
	}
	// evo-a-0001 is not a name BranchName produces for 1.
	if BranchName(line, number) != name {
		return "", 0, false
	}
	return line, number, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Index groups generation branch names by line. Each line's generation
// numbers are sorted ascending. Names that do not parse are skipped.
func Index(branches []string) map[string][]int {
	index := make(map[string][]int)
	for _, b := range branches {
		line, number, ok := ParseBranch(strings.TrimSpace(b))
		if !ok {
			continue
		}
		index[line] = append(index[line], number)
	}
	for line := range index {
		sort.Ints(index[line])
	}
	return index
}

// BranchLister lists local branches matching a git glob.
type BranchLister interface {
	ListBranches(pattern string) ([]string, error)
}

// Namer computes generation numbers from the branches that exist.
type Namer struct {
	branches BranchLister
}

// NewNamer creates a Namer backed by branches.
func NewNamer(branches BranchLister) *Namer {
	return &Namer{branches: branches}
}

// LatestGeneration returns the highest generation number of line, or 0 if
// the line has no generation branches. Malformed names are skipped.
func (n *Namer) LatestGeneration(line string) (int, error) {
	if err := ValidateLine(line); err != nil {
		return 0, err
	}

	names, err := n.branches.ListBranches(BranchPattern(line))
	if err != nil {
		return 0, err
	}

	latest := 0
	for _, name := range names {
		l, number, ok := ParseBranch(strings.TrimSpace(name))
		if !ok || l != line {
			continue
		}
		latest = max(latest, number)
	}
	return latest, nil
}

// NextGeneration returns LatestGeneration(line) + 1.
func (n *Namer) NextGeneration(line string) (int, error) {
	latest, err := n.LatestGeneration(line)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}
