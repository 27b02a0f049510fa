package mutation

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// mockRunner records calls and returns canned results.
type mockRunner struct {
	output   []byte
	err      error
	calls    [][]string
	dirs     []string
	deadline bool
	known    map[string]bool
}

func (m *mockRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	m.dirs = append(m.dirs, dir)
	_, m.deadline = ctx.Deadline()
	return m.output, m.err
}

func (m *mockRunner) LookPath(name string) (string, error) {
	if m.known[name] {
		return "/usr/local/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

func TestNewBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    BackendName
	}{
		{"", BackendClaude},
		{"claude", BackendClaude},
		{"CODEX", BackendCodex},
	}
	for _, tt := range tests {
		b, err := NewBackend(config.MutatorConfig{Backend: tt.backend})
		if err != nil {
			t.Fatalf("NewBackend(%q) error = %v", tt.backend, err)
		}
		if b.Name() != tt.want {
			t.Errorf("NewBackend(%q).Name() = %q, want %q", tt.backend, b.Name(), tt.want)
		}
	}

	_, err := NewBackend(config.MutatorConfig{Backend: "copilot"})
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("NewBackend(copilot) error = %v, want ErrInvalidConfig", err)
	}
}

func TestBackendCommands(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MutatorConfig
		want []string
	}{
		{
			name: "claude plain",
			cfg:  config.MutatorConfig{Backend: "claude"},
			want: []string{"claude", "-p", "PROMPT"},
		},
		{
			name: "claude skip permissions",
			cfg:  config.MutatorConfig{Backend: "claude", SkipPermissions: true},
			want: []string{"claude", "--dangerously-skip-permissions", "-p", "PROMPT"},
		},
		{
			name: "claude custom command",
			cfg:  config.MutatorConfig{Backend: "claude", Command: "npx claude"},
			want: []string{"npx", "claude", "-p", "PROMPT"},
		},
		{
			name: "codex default full auto",
			cfg:  config.MutatorConfig{Backend: "codex"},
			want: []string{"codex", "exec", "--full-auto", "PROMPT"},
		},
		{
			name: "codex suggest",
			cfg:  config.MutatorConfig{Backend: "codex", ApprovalMode: "suggest"},
			want: []string{"codex", "exec", "PROMPT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			name, args := b.Command("PROMPT")
			if diff := cmp.Diff(tt.want, append([]string{name}, args...)); diff != "" {
				t.Errorf("Command() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAgentMutate(t *testing.T) {
	runner := &mockRunner{output: []byte("edited 2 files\n")}
	agent := NewAgent(NewClaudeBackend(config.MutatorConfig{}), "/src/city", 0, runner, nil)

	if err := agent.Mutate(context.Background(), "make it glow"); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}
	if diff := cmp.Diff([]string{"claude", "-p", "make it glow"}, runner.calls[0]); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	if runner.dirs[0] != "/src/city" {
		t.Errorf("dir = %q, want /src/city", runner.dirs[0])
	}
	if runner.deadline {
		t.Error("no timeout configured, context should have no deadline")
	}
}

func TestAgentMutate_Timeout(t *testing.T) {
	runner := &mockRunner{}
	agent := NewAgent(NewCodexBackend(config.MutatorConfig{}), t.TempDir(), time.Minute, runner, nil)

	if err := agent.Mutate(context.Background(), "prompt"); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if !runner.deadline {
		t.Error("timeout configured, context should carry a deadline")
	}
}

func TestAgentMutate_Failure(t *testing.T) {
	runner := &mockRunner{
		output: []byte("Error: rate limited\n"),
		err:    &exitError{code: 2},
	}
	agent := NewAgent(NewClaudeBackend(config.MutatorConfig{}), t.TempDir(), 0, runner, nil)

	err := agent.Mutate(context.Background(), "prompt")
	var mutErr *errors.MutationError
	if !errors.As(err, &mutErr) {
		t.Fatalf("Mutate() error = %v, want *errors.MutationError", err)
	}
	if mutErr.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", mutErr.ExitCode)
	}
	if mutErr.Backend != "claude" {
		t.Errorf("Backend = %q, want claude", mutErr.Backend)
	}
	if !strings.Contains(mutErr.Output, "rate limited") {
		t.Errorf("Output = %q, want agent output", mutErr.Output)
	}
	if !errors.Is(err, errors.ErrAgentFailed) {
		t.Error("error should match ErrAgentFailed")
	}
	if !errors.IsRecoverable(err) {
		t.Error("mutation failures are recoverable")
	}
}

func TestAgentMutate_EmptyPrompt(t *testing.T) {
	runner := &mockRunner{}
	agent := NewAgent(NewClaudeBackend(config.MutatorConfig{}), t.TempDir(), 0, runner, nil)

	if err := agent.Mutate(context.Background(), "  \n"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Mutate() error = %v, want ErrInvalidInput", err)
	}
	if len(runner.calls) != 0 {
		t.Error("agent must not run with an empty prompt")
	}
}

func TestAgentCheck(t *testing.T) {
	runner := &mockRunner{known: map[string]bool{"codex": true}}

	if err := NewAgent(NewCodexBackend(config.MutatorConfig{}), "", 0, runner, nil).Check(); err != nil {
		t.Errorf("Check() for installed codex error = %v", err)
	}

	err := NewAgent(NewClaudeBackend(config.MutatorConfig{}), "", 0, runner, nil).Check()
	if !errors.Is(err, errors.ErrToolNotFound) {
		t.Errorf("Check() for missing claude error = %v, want ErrToolNotFound", err)
	}
}
