package mutation

import (
	"bytes"
	"text/template"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
)

// NoSuggestions stands in for an empty suggestion list so the agent never
// sees a blank section.
const NoSuggestions = "No specific suggestions"

// fileNotes describe the firmware files the agent is usually allowed to touch.
var fileNotes = map[string]string{
	"src/main.cpp":      "rendering, colors, speed",
	"include/CitySim.h": "simulation logic, agents, growth patterns",
}

// PromptData contains all data available to the mutation prompt
type PromptData struct {
	Scores      []critique.Score
	Overall     string
	Critique    string
	Suggestions []string
	Files       []EditableFile
	Rules       []string
}

// EditableFile is a file the agent may modify, with an optional note on
// what it controls.
type EditableFile struct {
	Path string
	Note string
}

var promptTemplate = template.Must(template.New("mutation").Funcs(template.FuncMap{
	"score": critique.FormatScore,
	"inc":   func(i int) int { return i + 1 },
}).Parse(`The ESP32 city screensaver simulation was just evaluated by a Vision AI critic.

**Scores (1-10):**
{{range .Scores}}- {{.Name}}: {{score .Value}}
{{end}}
**Overall Score:** {{.Overall}}/10

**Critique:** {{.Critique}}

**Technical Suggestions:**
{{range .Suggestions}}- {{.}}
{{end}}
Your task: Modify the CitySim simulation to improve the scores based on this feedback.

**Files you can modify:**
{{range .Files}}- {{.Path}}{{if .Note}} ({{.Note}}){{end}}
{{end}}{{if .Rules}}
**STRICT RULES:**
{{range $i, $rule := .Rules}}{{inc $i}}. {{$rule}}
{{end}}{{end}}
Focus on the lowest-scoring aspects first. Make 1-3 targeted improvements.
`))

// NewPromptData assembles prompt data from a critique and the configured
// editable files and rules.
func NewPromptData(c *critique.Critique, files, rules []string) PromptData {
	data := PromptData{
		Overall:  "N/A",
		Critique: "No critique provided",
		Rules:    rules,
	}
	if c != nil {
		data.Scores = c.OrderedScores()
		if c.OverallScore > 0 {
			data.Overall = critique.FormatScore(c.OverallScore)
		}
		if c.Critique != "" {
			data.Critique = c.Critique
		}
		data.Suggestions = c.TechnicalSuggestions
	}
	if len(data.Suggestions) == 0 {
		data.Suggestions = []string{NoSuggestions}
	}
	for _, path := range files {
		data.Files = append(data.Files, EditableFile{Path: path, Note: fileNotes[path]})
	}
	return data
}

// RenderPrompt renders the instruction handed to the coding agent.
func RenderPrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PromptFor renders the mutation prompt for c using the editable files and
// rules of cfg.
func PromptFor(c *critique.Critique, cfg config.MutatorConfig) (string, error) {
	return RenderPrompt(NewPromptData(c, cfg.EditableFiles, cfg.Rules))
}
