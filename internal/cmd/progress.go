package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/evolve"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/status"
)

// slowStages announce themselves when they start; they wait on a remote
// model, an agent or the toolchain.
var slowStages = map[evolve.Stage]string{
	evolve.StageCritique: "asking the critic",
	evolve.StageMutate:   "running the mutation agent",
	evolve.StageDeploy:   "building firmware",
}

// progressPrinter renders cycle events as console lines.
func progressPrinter(w io.Writer, st status.Styles) evolve.Listener {
	return func(ev evolve.Event) {
		name := fmt.Sprintf("%-13s", ev.Stage)
		switch ev.Kind {
		case evolve.EventStarted:
			if note, ok := slowStages[ev.Stage]; ok {
				fmt.Fprintf(w, "  %s %s%s\n", st.Muted.Render("…"), name, st.Muted.Render(note))
			}
		case evolve.EventCompleted:
			fmt.Fprintf(w, "  %s %s%s\n", st.Success.Render("✓"), name, ev.Detail)
		case evolve.EventSkipped:
			fmt.Fprintf(w, "  %s %s%s\n", st.Muted.Render("-"), name, st.Muted.Render(ev.Detail))
		case evolve.EventFailed:
			fmt.Fprintf(w, "  %s %s%s\n", st.Error.Render("✗"), name, st.Error.Render(firstLine(ev.Err)))
		}
	}
}

// printCritique writes the scores and critique text of c.
func printCritique(w io.Writer, st status.Styles, c *critique.Critique) {
	if c == nil {
		return
	}
	if c.Degraded() {
		fmt.Fprintf(w, "\n%s %s\n", st.Warning.Render("!"), "critique could not be parsed: "+c.ParseError)
		return
	}
	fmt.Fprintf(w, "\n%s %s/10\n", st.Title.Render("Overall"), critique.FormatScore(c.OverallScore))
	for _, s := range c.OrderedScores() {
		fmt.Fprintf(w, "  %-22s %s\n", s.Name, critique.FormatScore(s.Value))
	}
	if text := strings.TrimSpace(c.Critique); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
	for _, s := range c.TechnicalSuggestions {
		fmt.Fprintf(w, "  • %s\n", s)
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}
