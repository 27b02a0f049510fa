package critique

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOrderedScores(t *testing.T) {
	c := validCritique()
	c.Scores["palette"] = 3
	c.Scores["motion"] = 9

	got := c.OrderedScores()
	want := []Score{
		{DimensionOrganicGrowth, 6},
		{DimensionLuminanceBalance, 7},
		{DimensionVisualInterest, 5},
		{DimensionDensityDistribution, 8},
		{"motion", 9},
		{"palette", 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OrderedScores() mismatch (-want +got):\n%s", diff)
	}

	var nilCritique *Critique
	if nilCritique.OrderedScores() != nil {
		t.Error("nil critique should have no scores")
	}
}

func TestScoresJSON(t *testing.T) {
	c := validCritique()
	want := `{"density_distribution":8,"luminance_balance":7,"organic_growth":6,"visual_interest":5}`
	if got := c.ScoresJSON(); got != want {
		t.Errorf("ScoresJSON() = %s, want %s", got, want)
	}

	if got := (&Critique{}).ScoresJSON(); got != "{}" {
		t.Errorf("ScoresJSON() of empty critique = %s, want {}", got)
	}
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{7, "7"},
		{6.5, "6.5"},
		{10, "10"},
	}
	for _, tt := range tests {
		if got := FormatScore(tt.in); got != tt.want {
			t.Errorf("FormatScore(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDegraded(t *testing.T) {
	if validCritique().Degraded() {
		t.Error("valid critique is not degraded")
	}
	if !(&Critique{RawResponse: "x", ParseError: "bad"}).Degraded() {
		t.Error("critique with parse error is degraded")
	}
	var nilCritique *Critique
	if nilCritique.Degraded() {
		t.Error("nil critique is not degraded")
	}
}

func TestValidate(t *testing.T) {
	if err := validCritique().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	c := validCritique()
	c.Scores[DimensionOrganicGrowth] = 0.5
	if err := c.Validate(); err == nil {
		t.Error("Validate() should reject a score below 1")
	}
}
