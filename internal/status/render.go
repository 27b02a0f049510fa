package status

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
)

// Styles are the console styles shared by status and cycle output.
type Styles struct {
	Title   lipgloss.Style
	Accent  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles returns colored styles, or pass-through ones when color is false.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{Title: plain, Accent: plain, Success: plain, Warning: plain, Error: plain, Muted: plain}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		Accent:  lipgloss.NewStyle().Foreground(primaryColor),
		Success: lipgloss.NewStyle().Foreground(successColor),
		Warning: lipgloss.NewStyle().Foreground(warningColor),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(errorColor),
		Muted:   lipgloss.NewStyle().Foreground(mutedColor),
	}
}

// ColorEnabled reports whether output to f should be styled: f is a terminal
// and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Renderer writes summaries for humans.
type Renderer struct {
	w       io.Writer
	styles  Styles
	command string
}

// NewRenderer creates a Renderer writing to w. command is the program name
// used in hints ("evolve").
func NewRenderer(w io.Writer, styles Styles, command string) *Renderer {
	if command == "" {
		command = "evolve"
	}
	return &Renderer{w: w, styles: styles, command: command}
}

// Render writes s.
func (r *Renderer) Render(s *Summary) error {
	var b strings.Builder
	st := r.styles

	b.WriteString(st.Title.Render("Evolution status"))
	b.WriteString("\n\n")

	if s.SeedExists {
		fmt.Fprintf(&b, "%s seed tag %q present\n", st.Success.Render("✓"), s.SeedTag)
	} else {
		fmt.Fprintf(&b, "%s seed tag %q missing; generation 1 will branch from the trunk\n",
			st.Warning.Render("!"), s.SeedTag)
	}

	if s.Empty() {
		b.WriteString("\nNo evolution branches yet.\n")
		fmt.Fprintf(&b, "%s\n", st.Muted.Render(fmt.Sprintf("Start with: %s --line alpha <image>", r.command)))
	} else {
		fmt.Fprintf(&b, "\nEvolution lines (%d):\n", len(s.Lines))
		for _, line := range s.Lines {
			r.renderLine(&b, line)
		}
	}

	if len(s.RecordOnlyLines) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.Muted.Render("Records without branches: "+strings.Join(s.RecordOnlyLines, ", ")))
	}

	current := s.CurrentBranch
	if s.OnGeneration() {
		current = fmt.Sprintf("%s (%s generation %d)", current, s.CurrentLine, s.CurrentGeneration)
	}
	fmt.Fprintf(&b, "\nCurrent branch: %s\n", st.Accent.Render(current))

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) renderLine(b *strings.Builder, line Line) {
	st := r.styles

	noun := "generations"
	if line.Count == 1 {
		noun = "generation"
	}
	fmt.Fprintf(b, "  %s: %d %s (latest: %d", st.Accent.Render(line.Name), line.Count, noun, line.Latest)
	if line.LatestScore != nil {
		fmt.Fprintf(b, ", last score %s/10 at gen %03d", critique.FormatScore(*line.LatestScore), line.LatestScoredGen)
	}
	b.WriteString(")\n")

	for _, g := range line.Recent {
		entry := fmt.Sprintf("    └─ gen %03d", g.Number)
		if !g.Recorded {
			entry += st.Muted.Render(" (no record)")
		}
		if g.Current {
			entry += st.Success.Render(" ← current")
		}
		b.WriteString(entry + "\n")
	}
}
