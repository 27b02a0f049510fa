//go:build integration

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/record"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/runlock"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/testutil"
)

const critiqueJSON = `{
  "scores": {
    "organic_growth": 6,
    "luminance_balance": 7,
    "visual_interest": 5,
    "density_distribution": 8
  },
  "overall_score": 6.5,
  "critique": "Roads read as a grid. The core glows nicely.",
  "technical_suggestions": ["increase road branching probability"]
}`

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags()

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags clears flag values left over from a previous execution.
func resetFlags() {
	cfgFile = ""
	lineFlag, genFlag, resumeFromFlag = "", 0, ""
	critiqueOnlyFlag, skipUploadFlag, statusFlag, reuseCritiqueFlag = false, false, false, false
	statusJSON = false
	watchLine, watchSkipUpload, watchMax = "", false, 0
}

// setupTestEnvironment creates a firmware repo, changes to it and isolates
// the user config. It returns the repository path.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repoDir := testutil.SetupFirmwareRepo(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(repoDir)
	return repoDir
}

// writeConfig writes a YAML config file outside the repository.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// writeCapture writes a small PNG into dir and returns its path.
func writeCapture(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(2, 1, color.RGBA{R: 255, G: 210, B: 90, A: 255})

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create capture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode capture: %v", err)
	}
	return path
}

// fakeGemini answers every generateContent call with text.
func fakeGemini(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": text}},
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// cycleConfig points the critic at srv and replaces the agent and toolchain
// with local scripts.
func cycleConfig(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")

	script := filepath.Join(t.TempDir(), "mutate.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho '// tweak' >> src/main.cpp\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return writeConfig(t, fmt.Sprintf(`critic:
  backend: gemini
  base_url: %s/
  timeout_seconds: 10
mutator:
  command: %s
  skip_permissions: false
deploy:
  command: "true"
logging:
  enabled: false
`, srv.URL, script))
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Name() != "evolve" {
		t.Errorf("rootCmd.Name() = %q, want %q", rootCmd.Name(), "evolve")
	}

	expectedCmds := []string{"status", "critique", "show", "watch", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}

	for _, flag := range []string{"line", "gen", "critique-only", "skip-upload", "skip-flash", "status", "reuse-critique", "resume-from"} {
		if rootCmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected flag --%s not found", flag)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	repo := setupTestEnvironment(t)
	testutil.CreateBranch(t, repo, "evo-alpha-001")
	testutil.CreateBranch(t, repo, "evo-alpha-002")

	for _, args := range [][]string{{"status"}, {"--status"}} {
		output, err := executeCommand(rootCmd, args...)
		if err != nil {
			t.Fatalf("%v failed: %v\nOutput: %s", args, err, output)
		}
		for _, want := range []string{"Evolution lines (1):", "alpha: 2 generations (latest: 2)", "Current branch: main"} {
			if !strings.Contains(output, want) {
				t.Errorf("%v output missing %q:\n%s", args, want, output)
			}
		}
	}
}

func TestStatusCommand_JSON(t *testing.T) {
	setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "status", "--json")
	if err != nil {
		t.Fatalf("status --json failed: %v\nOutput: %s", err, output)
	}
	var summary struct {
		SeedTag string            `json:"seed_tag"`
		Lines   []json.RawMessage `json:"lines"`
	}
	if err := json.Unmarshal([]byte(output), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if summary.SeedTag != "seed" || summary.Lines == nil || len(summary.Lines) != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestStatusCommand_NotGitRepo(t *testing.T) {
	testutil.SkipIfNoGit(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	_, err := executeCommand(rootCmd, "status")
	if !errors.Is(err, errors.ErrNotGitRepository) {
		t.Errorf("status error = %v, want ErrNotGitRepository", err)
	}
}

func TestShowCommand(t *testing.T) {
	repo := setupTestEnvironment(t)
	store := record.NewStore(filepath.Join(repo, ".evolve", "generations"), nil)
	for gen, overall := range map[int]float64{1: 5, 2: 6.5} {
		c, err := critique.Parse(strings.Replace(critiqueJSON, "6.5", fmt.Sprint(overall), 1))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.Save("alpha", gen, c, ""); err != nil {
			t.Fatal(err)
		}
	}

	output, err := executeCommand(rootCmd, "show", "alpha", "1")
	if err != nil {
		t.Fatalf("show failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, `"generation": 1`) || !strings.Contains(output, `"overall_score": 5`) {
		t.Errorf("show alpha 1 output:\n%s", output)
	}

	output, err = executeCommand(rootCmd, "show", "alpha")
	if err != nil {
		t.Fatalf("show failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, `"generation": 2`) {
		t.Errorf("show alpha should print the newest record:\n%s", output)
	}

	if _, err := executeCommand(rootCmd, "show", "beta"); !errors.Is(err, errors.ErrRecordNotFound) {
		t.Errorf("show beta error = %v, want ErrRecordNotFound", err)
	}
	if _, err := executeCommand(rootCmd, "show", "alpha", "zero"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("show alpha zero error = %v, want ErrInvalidInput", err)
	}
}

func TestEvolve_NoCapture(t *testing.T) {
	repo := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd)
	var notFound *errors.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("evolve error = %v, want *errors.NotFoundError", err)
	}
	want := "Place screenshots in: " + filepath.Join(repo, ".evolve", "captures")
	if !strings.Contains(output, want) {
		t.Errorf("output missing %q:\n%s", want, output)
	}
}

func TestEvolve_ImageMissing(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(rootCmd, "--line", "alpha", "nope.png")
	var notFound *errors.NotFoundError
	if !errors.As(err, &notFound) || notFound.ResourceID != "nope.png" {
		t.Errorf("evolve error = %v, want image not found", err)
	}
}

func TestEvolve_MissingCredential(t *testing.T) {
	repo := setupTestEnvironment(t)
	t.Setenv("GEMINI_API_KEY", "")
	image := writeCapture(t, t.TempDir(), "night.png")

	_, err := executeCommand(rootCmd, "--line", "alpha", image)
	if !errors.Is(err, errors.ErrMissingCredential) {
		t.Fatalf("evolve error = %v, want ErrMissingCredential", err)
	}
	if branches := testutil.ListBranches(t, repo); len(branches) != 1 {
		t.Errorf("branches = %v, nothing should be created before the critic is usable", branches)
	}
}

func TestEvolve_LockedBeforeGenerationDetection(t *testing.T) {
	repo := setupTestEnvironment(t)
	image := writeCapture(t, t.TempDir(), "night.png")

	held, err := runlock.Acquire(filepath.Join(repo, ".evolve"), "evolve watch", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	output, err := executeCommand(rootCmd, "--line", "alpha", image)
	if !errors.Is(err, errors.ErrLocked) {
		t.Fatalf("evolve error = %v, want ErrLocked", err)
	}
	if strings.Contains(output, "Auto-detected generation") {
		t.Errorf("generation detected without holding the lock:\n%s", output)
	}
}

func TestEvolve_InvalidConfig(t *testing.T) {
	setupTestEnvironment(t)
	cfg := writeConfig(t, "critic:\n  backend: clippy\n")

	_, err := executeCommand(rootCmd, "--config", cfg, "status")
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestEvolve_FullCycle(t *testing.T) {
	repo := setupTestEnvironment(t)
	cfg := cycleConfig(t, fakeGemini(t, critiqueJSON))
	writeCapture(t, filepath.Join(repo, ".evolve", "captures"), "night.png")

	output, err := executeCommand(rootCmd, "--config", cfg, "--line", "alpha")
	if err != nil {
		t.Fatalf("evolve failed: %v\nOutput: %s", err, output)
	}

	for _, want := range []string{
		"Using most recent capture:",
		"Auto-detected generation: 1",
		"Generation 1 committed on evo-alpha-001",
		"Overall 6.5/10",
		"evolve --line alpha --gen 2 <new_image>",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	if got := testutil.GetCurrentBranch(t, repo); got != "evo-alpha-001" {
		t.Errorf("current branch = %q, want evo-alpha-001", got)
	}
	if msg := testutil.LastCommitMessage(t, repo, "HEAD"); !strings.Contains(msg, "Generation 1 (alpha line)") {
		t.Errorf("commit message = %q", msg)
	}
	rec, err := record.NewStore(filepath.Join(repo, ".evolve", "generations"), nil).Load("alpha", 1)
	if err != nil || rec.Critique.OverallScore != 6.5 {
		t.Errorf("record = %+v, %v", rec, err)
	}
	if _, err := os.Stat(filepath.Join(repo, ".evolve", "evolve.lock")); !os.IsNotExist(err) {
		t.Errorf("run lock left behind: %v", err)
	}
}

func TestEvolve_CritiqueOnly(t *testing.T) {
	repo := setupTestEnvironment(t)
	cfg := cycleConfig(t, fakeGemini(t, critiqueJSON))
	image := writeCapture(t, t.TempDir(), "night.png")

	for _, args := range [][]string{
		{"--config", cfg, "--critique-only", image},
		{"--config", cfg, "critique", image},
	} {
		output, err := executeCommand(rootCmd, args...)
		if err != nil {
			t.Fatalf("%v failed: %v\nOutput: %s", args, err, output)
		}
		if !strings.Contains(output, `"overall_score": 6.5`) {
			t.Errorf("%v output missing the critique:\n%s", args, output)
		}
	}
	if branches := testutil.ListBranches(t, repo); len(branches) != 1 {
		t.Errorf("branches = %v, critique-only must not branch", branches)
	}
}

func TestEvolve_MalformedCritique(t *testing.T) {
	repo := setupTestEnvironment(t)
	cfg := cycleConfig(t, fakeGemini(t, "Lovely skyline, 8/10."))
	image := writeCapture(t, t.TempDir(), "night.png")

	output, err := executeCommand(rootCmd, "--config", cfg, "--line", "alpha", image)
	if !errors.Is(err, errors.ErrCritiqueRejected) {
		t.Fatalf("evolve error = %v, want ErrCritiqueRejected\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "cycle stopped at critique") || !strings.Contains(output, "The raw response was kept in") {
		t.Errorf("output:\n%s", output)
	}
	rec, err := record.NewStore(filepath.Join(repo, ".evolve", "generations"), nil).Load("alpha", 1)
	if err != nil || rec.Critique.RawResponse != "Lovely skyline, 8/10." {
		t.Errorf("degraded record = %+v, %v", rec, err)
	}
}

func TestConfigCommands(t *testing.T) {
	setupTestEnvironment(t)
	cfg := filepath.Join(t.TempDir(), "evolve.yaml")

	output, err := executeCommand(rootCmd, "--config", cfg, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v\nOutput: %s", err, output)
	}
	if _, err := os.Stat(cfg); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if _, err := executeCommand(rootCmd, "--config", cfg, "config", "init"); err == nil {
		t.Error("config init should refuse to overwrite an existing file")
	}

	if output, err := executeCommand(rootCmd, "--config", cfg, "config", "set", "evolution.default_line", "beta"); err != nil {
		t.Fatalf("config set failed: %v\nOutput: %s", err, output)
	}
	if _, err := executeCommand(rootCmd, "--config", cfg, "config", "set", "critic.backend", "clippy"); err == nil {
		t.Error("config set should reject an invalid backend")
	}
	if _, err := executeCommand(rootCmd, "--config", cfg, "config", "set", "no.such_key", "1"); err == nil {
		t.Error("config set should reject an unknown key")
	}

	output, err = executeCommand(rootCmd, "--config", cfg, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "default_line: beta") || !strings.Contains(output, "Config file: "+cfg) {
		t.Errorf("config show output:\n%s", output)
	}

	if _, err := executeCommand(rootCmd, "--config", cfg, "config", "reset", "evolution.default_line"); err != nil {
		t.Fatalf("config reset failed: %v", err)
	}
	output, _ = executeCommand(rootCmd, "--config", cfg, "config", "show")
	if !strings.Contains(output, "default_line: alpha") {
		t.Errorf("config show after reset:\n%s", output)
	}

	output, err = executeCommand(rootCmd, "--config", cfg, "config", "path")
	if err != nil || !strings.Contains(output, "Active config: "+cfg) {
		t.Errorf("config path = %v\n%s", err, output)
	}
}
