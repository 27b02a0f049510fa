package critique

import (
	"encoding/json"
	"strings"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// Parse decodes a critic response into a Critique.
//
// Models often wrap JSON in a markdown code fence or surround it with prose,
// so the fence is stripped and, failing that, the outermost {...} span is
// tried. When no candidate decodes into a valid critique, Parse returns a
// degraded Critique holding the raw text and the reason, together with a
// *errors.CritiqueParseError. It never returns a nil Critique.
func Parse(raw string) (*Critique, error) {
	var lastErr error
	for _, candidate := range candidates(raw) {
		c, err := decode(candidate)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}

	reason := "empty response"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return &Critique{RawResponse: raw, ParseError: reason}, errors.NewCritiqueParseError(raw, reason)
}

func decode(text string) (*Critique, error) {
	var c Critique
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// candidates returns the texts worth decoding, most specific first.
func candidates(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	var out []string
	if fenced, ok := stripFence(text); ok {
		out = append(out, fenced)
	} else {
		out = append(out, text)
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if span := text[start : end+1]; span != out[0] {
			out = append(out, span)
		}
	}
	return out
}

// stripFence removes a leading ``` or ```json fence and its closing fence.
func stripFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	parts := strings.SplitN(text, "```", 3)
	if len(parts) < 2 {
		return "", false
	}
	body := strings.TrimSpace(parts[1])
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body), true
}
