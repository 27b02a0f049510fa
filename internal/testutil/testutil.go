// Package testutil provides testing utilities for evolve tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// SetupTestRepo creates a temporary git repository for testing.
// Returns the path to the repository. The repository is automatically
// cleaned up when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	// Initialize git repository
	if err := runGit(dir, "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	// Configure git user for commits made by code under test
	if err := runGit(dir, "config", "user.email", "test@evolve.dev"); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}
	if err := runGit(dir, "config", "user.name", "Evolve Test"); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}
	if err := runGit(dir, "config", "commit.gpgsign", "false"); err != nil {
		t.Fatalf("failed to disable commit signing: %v", err)
	}

	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to create README: %v", err)
	}
	if err := runGit(dir, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, "commit", "-m", "Initial commit"); err != nil {
		t.Fatalf("failed to create initial commit: %v", err)
	}

	// Create main branch (some systems default to master)
	if err := runGit(dir, "branch", "-M", "main"); err != nil {
		t.Fatalf("failed to rename branch to main: %v", err)
	}

	return dir
}

// SetupFirmwareRepo creates a test repository shaped like the screensaver
// firmware: a main sketch and a simulation header on main.
func SetupFirmwareRepo(t *testing.T) string {
	t.Helper()

	return SetupTestRepoWithContent(t, map[string]string{
		"src/main.cpp":      "#include \"CitySim.h\"\nvoid setup() {}\nvoid loop() { sim.step(); }\n",
		"include/CitySim.h": "#pragma once\nstruct CitySim { void step() {} };\nstatic CitySim sim;\n",
		"platformio.ini":    "[env:tdisplay]\nplatform = espressif32\n",
	})
}

// SetupTestRepoWithContent creates a test repository with specified files.
// The files map contains relative paths to file contents.
func SetupTestRepoWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)

	for path, content := range files {
		WriteFile(t, dir, path, content)
	}

	// Commit the additional files
	if err := runGit(dir, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, "commit", "-m", "Add test files"); err != nil {
		t.Fatalf("failed to commit test files: %v", err)
	}

	return dir
}

// WriteFile creates or updates a file in the repository without staging it.
func WriteFile(t *testing.T, repoDir, path, content string) {
	t.Helper()

	fullPath := filepath.Join(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	WriteFile(t, repoDir, path, content)
	if err := runGit(repoDir, "add", path); err != nil {
		t.Fatalf("failed to stage file %s: %v", path, err)
	}
	if err := runGit(repoDir, "commit", "-m", message); err != nil {
		t.Fatalf("failed to commit file %s: %v", path, err)
	}
}

// CreateBranch creates a new branch at HEAD.
func CreateBranch(t *testing.T, repoDir, branch string) {
	t.Helper()

	if err := runGit(repoDir, "branch", branch); err != nil {
		t.Fatalf("failed to create branch %s: %v", branch, err)
	}
}

// CreateTag creates a lightweight tag at HEAD.
func CreateTag(t *testing.T, repoDir, tag string) {
	t.Helper()

	if err := runGit(repoDir, "tag", tag); err != nil {
		t.Fatalf("failed to create tag %s: %v", tag, err)
	}
}

// CheckoutBranch switches to a branch.
func CheckoutBranch(t *testing.T, repoDir, branch string) {
	t.Helper()

	if err := runGit(repoDir, "checkout", branch); err != nil {
		t.Fatalf("failed to checkout branch %s: %v", branch, err)
	}
}

// GetCurrentBranch returns the current branch name.
func GetCurrentBranch(t *testing.T, repoDir string) string {
	t.Helper()
	return Git(t, repoDir, "rev-parse", "--abbrev-ref", "HEAD")
}

// RevParse resolves a ref to its commit hash.
func RevParse(t *testing.T, repoDir, ref string) string {
	t.Helper()
	return Git(t, repoDir, "rev-parse", ref+"^{commit}")
}

// GetCommitCount returns the number of commits reachable from ref.
func GetCommitCount(t *testing.T, repoDir, ref string) int {
	t.Helper()

	out := Git(t, repoDir, "rev-list", "--count", ref)
	count, err := strconv.Atoi(out)
	if err != nil {
		t.Fatalf("failed to parse commit count %q: %v", out, err)
	}
	return count
}

// LastCommitMessage returns the full message of the commit at ref.
func LastCommitMessage(t *testing.T, repoDir, ref string) string {
	t.Helper()
	return Git(t, repoDir, "log", "-1", "--format=%B", ref)
}

// HasUncommittedChanges returns true if the repository has uncommitted changes.
func HasUncommittedChanges(t *testing.T, repoDir string) bool {
	t.Helper()
	return Git(t, repoDir, "status", "--porcelain") != ""
}

// ListBranches returns all local branch names.
func ListBranches(t *testing.T, repoDir string) []string {
	t.Helper()

	out := Git(t, repoDir, "branch", "--format=%(refname:short)")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// Git runs a git command in repoDir and returns its trimmed stdout, failing
// the test on a non-zero exit.
func Git(t *testing.T, repoDir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return strings.TrimSpace(string(output))
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// runGit runs a git command in the specified directory.
func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Evolve Test",
		"GIT_AUTHOR_EMAIL=test@evolve.dev",
		"GIT_COMMITTER_NAME=Evolve Test",
		"GIT_COMMITTER_EMAIL=test@evolve.dev",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
