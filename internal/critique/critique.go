// Package critique obtains a structured aesthetic critique of a display
// capture from a vision model.
//
// A Critique is an immutable value once received: the orchestrator stores it
// in the generation record, embeds it in the mutation prompt and in the
// generation commit, and never modifies it. A response that does not fit the
// schema is not discarded; Parse returns a degraded Critique carrying the raw
// text together with a *errors.CritiqueParseError.
package critique

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// Rubric dimensions, in the order they are presented to the critic and rendered
// in prompts and reports.
const (
	DimensionOrganicGrowth       = "organic_growth"
	DimensionLuminanceBalance    = "luminance_balance"
	DimensionVisualInterest      = "visual_interest"
	DimensionDensityDistribution = "density_distribution"
)

// Dimensions returns the rubric dimensions in presentation order.
func Dimensions() []string {
	return []string{
		DimensionOrganicGrowth,
		DimensionLuminanceBalance,
		DimensionVisualInterest,
		DimensionDensityDistribution,
	}
}

// Critique is the critic's verdict on one capture.
type Critique struct {
	Scores               map[string]float64 `json:"scores" validate:"required,dive,gte=1,lte=10"`
	OverallScore         float64            `json:"overall_score" validate:"gte=1,lte=10"`
	Critique             string             `json:"critique" validate:"required"`
	TechnicalSuggestions []string           `json:"technical_suggestions"`

	// Set only on a degraded critique.
	RawResponse string `json:"raw_response,omitempty" validate:"-"`
	ParseError  string `json:"parse_error,omitempty" validate:"-"`
}

// Critic produces a critique of an image file.
type Critic interface {
	// Name identifies the backend ("gemini", "openai").
	Name() string
	// Critique sends the image at imagePath to the critic. When the response
	// cannot be parsed it returns the degraded critique and a
	// *errors.CritiqueParseError; any other error means no critique exists.
	Critique(ctx context.Context, imagePath string) (*Critique, error)
}

// Degraded reports whether the critique only carries an unparsable response.
func (c *Critique) Degraded() bool {
	return c != nil && c.ParseError != ""
}

// OrderedScores returns the scores as name/value pairs: rubric dimensions
// first in rubric order, then any extra dimensions alphabetically.
func (c *Critique) OrderedScores() []Score {
	if c == nil || len(c.Scores) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(c.Scores))
	scores := make([]Score, 0, len(c.Scores))
	for _, name := range Dimensions() {
		if v, ok := c.Scores[name]; ok {
			scores = append(scores, Score{Name: name, Value: v})
			seen[name] = true
		}
	}

	var extra []string
	for name := range c.Scores {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		scores = append(scores, Score{Name: name, Value: c.Scores[name]})
	}
	return scores
}

// ScoresJSON serializes the scores as a compact JSON object with sorted keys.
func (c *Critique) ScoresJSON() string {
	if c == nil || c.Scores == nil {
		return "{}"
	}
	data, err := json.Marshal(c.Scores)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Score is a single named rubric score.
type Score struct {
	Name  string
	Value float64
}

// FormatScore renders a score without a trailing ".0" for whole numbers.
func FormatScore(v float64) string {
	return fmt.Sprintf("%g", v)
}

var critiqueValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the critique against the schema: every rubric dimension
// scored 1-10, an overall score 1-10 and a non-empty critique text.
func (c *Critique) Validate() error {
	if err := critiqueValidate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	var missing []string
	for _, name := range Dimensions() {
		if _, ok := c.Scores[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("scores missing dimensions: %s", strings.Join(missing, ", "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
