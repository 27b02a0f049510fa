// Package vcs wraps the git command line as the version store of an
// evolution: branch and tag queries, generation branch materialization and
// generation commits.
//
// Every non-zero git exit becomes a *errors.VersionControlError carrying
// git's own output. A missing git binary is a configuration problem and
// surfaces as a *errors.ConfigurationError instead.
package vcs

import (
	"os/exec"
	"strings"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// CommitStatus distinguishes a real commit from a commit with nothing in it.
type CommitStatus string

const (
	// StatusCommitted means a new commit was created.
	StatusCommitted CommitStatus = "committed"
	// StatusNoOp means the working tree had no changes; nothing was committed.
	StatusNoOp CommitStatus = "no-op"
)

// CommitOutcome is the result of CommitAll.
type CommitOutcome struct {
	Status CommitStatus `json:"status"`
	// Hash is the new commit's full hash. Empty for StatusNoOp.
	Hash string `json:"hash,omitempty"`
}

// Options configures a Store.
type Options struct {
	// SeedTag marks generation 0. Generation 1 branches from it when it exists.
	SeedTag string
	// TrunkBranch is the parent of generation 1 when the seed tag is absent.
	TrunkBranch string
	// ExcludePaths are repository-relative paths (forward slashes) that are
	// never staged and never make the tree dirty.
	ExcludePaths []string
	Logger       *logging.Logger
}

// Store is the git-backed version store of one repository.
type Store struct {
	repoDir  string
	opts     Options
	executor CommandExecutor
	logger   *logging.Logger
}

// New creates a Store for the repository at repoDir using the git CLI.
func New(repoDir string, opts Options) *Store {
	return NewWithExecutor(repoDir, opts, NewCLICommandExecutor())
}

// NewWithExecutor creates a Store with a custom executor.
// This is primarily useful for testing.
func NewWithExecutor(repoDir string, opts Options, executor CommandExecutor) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.SeedTag == "" {
		opts.SeedTag = "seed"
	}
	if opts.TrunkBranch == "" {
		opts.TrunkBranch = "main"
	}
	return &Store{
		repoDir:  repoDir,
		opts:     opts,
		executor: executor,
		logger:   logger,
	}
}

// RepoDir returns the repository directory.
func (s *Store) RepoDir() string {
	return s.repoDir
}

// SeedTag returns the configured seed tag name.
func (s *Store) SeedTag() string {
	return s.opts.SeedTag
}

// git runs a git command in the repository.
func (s *Store) git(args ...string) ([]byte, error) {
	output, err := s.executor.Run(s.repoDir, "git", args...)
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		return output, errors.NewConfigurationError("git executable not found", errors.ErrToolNotFound).
			WithSetting("PATH").
			WithHint("install git and make sure it is on PATH")
	}
	return output, err
}

// vcsError builds a VersionControlError for a failed git call, passing
// configuration errors from git() through untouched.
func (s *Store) vcsError(message string, err error, output []byte) error {
	return s.branchError(message, "", err, output)
}

func (s *Store) branchError(message, branch string, err error, output []byte) error {
	if errors.IsConfigurationError(err) {
		return err
	}
	vcsErr := errors.NewVersionControlError(message, err).
		WithRepository(s.repoDir).
		WithOutput(string(output))
	if branch != "" {
		vcsErr = vcsErr.WithBranch(branch)
	}
	return vcsErr
}

// pathspec returns the pathspec limiting an operation to everything but the
// excluded paths.
func (s *Store) pathspec() []string {
	if len(s.opts.ExcludePaths) == 0 {
		return nil
	}
	spec := []string{"--", "."}
	for _, p := range s.opts.ExcludePaths {
		spec = append(spec, ":(exclude)"+p)
	}
	return spec
}

// CheckRepository verifies that the store points at a git work tree.
func (s *Store) CheckRepository() error {
	output, err := s.git("rev-parse", "--is-inside-work-tree")
	if err != nil {
		if errors.IsConfigurationError(err) {
			return err
		}
		return errors.NewVersionControlError("not a git repository", errors.ErrNotGitRepository).
			WithRepository(s.repoDir).
			WithOutput(string(output))
	}
	if strings.TrimSpace(string(output)) != "true" {
		return errors.NewVersionControlError("not inside a git work tree", errors.ErrNotGitRepository).
			WithRepository(s.repoDir)
	}
	return nil
}

// BranchExists reports whether a local branch exists.
func (s *Store) BranchExists(name string) (bool, error) {
	output, err := s.git("branch", "--list", name)
	if err != nil {
		return false, s.branchError("failed to list branches", name, err, output)
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// TagExists reports whether a tag exists.
func (s *Store) TagExists(name string) (bool, error) {
	output, err := s.git("tag", "--list", name)
	if err != nil {
		return false, s.vcsError("failed to list tags", err, output)
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// ListBranches returns the local branches matching a git glob.
func (s *Store) ListBranches(pattern string) ([]string, error) {
	output, err := s.git("branch", "--list", "--format=%(refname:short)", pattern)
	if err != nil {
		return nil, s.vcsError("failed to list branches", err, output)
	}

	var branches []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// CurrentBranch returns the checked-out branch name ("HEAD" when detached).
func (s *Store) CurrentBranch() (string, error) {
	output, err := s.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", s.vcsError("failed to get current branch", err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsClean reports whether the working tree holds nothing a CommitAll would
// pick up: no staged, unstaged or untracked changes outside the excluded
// paths. Ignored files do not count.
func (s *Store) IsClean() (bool, error) {
	args := append([]string{"status", "--porcelain", "--untracked-files=all"}, s.pathspec()...)
	output, err := s.git(args...)
	if err != nil {
		return false, s.vcsError("failed to check git status", err, output)
	}
	return strings.TrimSpace(string(output)) == "", nil
}

// Checkout checks out an existing branch or tag.
func (s *Store) Checkout(ref string) error {
	output, err := s.git("checkout", ref)
	if err != nil {
		return s.branchError("failed to checkout", ref, err, output)
	}
	return nil
}

// ParentOf returns the ref generation number of line branches from: the
// previous generation's branch, or for generation 1 the seed tag when it
// exists and the trunk branch otherwise.
func (s *Store) ParentOf(line string, number int) (string, error) {
	if number == 1 {
		seeded, err := s.TagExists(s.opts.SeedTag)
		if err != nil {
			return "", err
		}
		if seeded {
			return s.opts.SeedTag, nil
		}
		return s.opts.TrunkBranch, nil
	}

	parent := lineage.BranchName(line, number-1)
	exists, err := s.BranchExists(parent)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errors.NewVersionControlError("previous generation branch does not exist", errors.ErrBranchNotFound).
			WithBranch(parent).
			WithRepository(s.repoDir)
	}
	return parent, nil
}

// EnsureGenerationBranch checks out the branch of generation number in line,
// creating it from its parent first if it does not exist yet. created
// reports whether a new branch was made. Re-running for an existing branch
// only checks it out.
func (s *Store) EnsureGenerationBranch(line string, number int) (branch string, created bool, err error) {
	if err := lineage.ValidateLine(line); err != nil {
		return "", false, err
	}
	if number < 1 {
		return "", false, errors.NewValidationError("generation must be at least 1").
			WithField("generation").
			WithValue(number)
	}

	branch = lineage.BranchName(line, number)

	exists, err := s.BranchExists(branch)
	if err != nil {
		return "", false, err
	}
	if exists {
		s.logger.Info("resuming existing generation branch", "branch", branch)
		if err := s.Checkout(branch); err != nil {
			return "", false, err
		}
		return branch, false, nil
	}

	parent, err := s.ParentOf(line, number)
	if err != nil {
		return "", false, err
	}

	s.logger.Info("creating generation branch", "branch", branch, "parent", parent)
	output, err := s.git("checkout", "-b", branch, parent)
	if err != nil {
		return "", false, s.branchError("failed to create generation branch from "+parent, branch, err, output)
	}
	return branch, true, nil
}

// stageAll stages every change outside the excluded paths.
func (s *Store) stageAll() error {
	args := append([]string{"add", "-A"}, s.pathspec()...)
	output, err := s.git(args...)
	if err != nil {
		return s.vcsError("failed to stage changes", err, output)
	}
	return nil
}

// hasStagedChanges reports whether the index differs from HEAD.
func (s *Store) hasStagedChanges() (bool, error) {
	output, err := s.git("diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var exit exitCoder
	if errors.As(err, &exit) && exit.ExitCode() == 1 {
		return true, nil
	}
	return false, s.vcsError("failed to inspect staged changes", err, output)
}

// StageAndDiffStat stages all changes and returns statistics of what a
// CommitAll right now would commit.
func (s *Store) StageAndDiffStat() (DiffStat, error) {
	if err := s.stageAll(); err != nil {
		return DiffStat{}, err
	}

	output, err := s.git("diff", "--cached", "--no-color", "--no-ext-diff")
	if err != nil {
		return DiffStat{}, s.vcsError("failed to diff staged changes", err, output)
	}
	return ParseDiffStat(output)
}

// CommitAll stages all changes and commits them with message. A tree with
// nothing to commit yields StatusNoOp and no commit.
func (s *Store) CommitAll(message string) (CommitOutcome, error) {
	if err := s.stageAll(); err != nil {
		return CommitOutcome{}, err
	}

	changed, err := s.hasStagedChanges()
	if err != nil {
		return CommitOutcome{}, err
	}
	if !changed {
		s.logger.Info("nothing to commit")
		return CommitOutcome{Status: StatusNoOp}, nil
	}

	output, err := s.git("commit", "-m", message)
	if err != nil {
		return CommitOutcome{}, s.vcsError("failed to commit changes", err, output)
	}

	output, err = s.git("rev-parse", "HEAD")
	if err != nil {
		return CommitOutcome{}, s.vcsError("failed to read new commit hash", err, output)
	}

	hash := strings.TrimSpace(string(output))
	s.logger.Info("committed generation", "hash", hash)
	return CommitOutcome{Status: StatusCommitted, Hash: hash}, nil
}
