package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Ruleset holds the keyword signals the heuristic classifier scores with.
// Shipping it as data lets reviewers tune vocabulary per literature without
// a rebuild.
type Ruleset struct {
	Version string `yaml:"version"`

	// ResultKeywords mark captions of tables reporting treatment effects.
	ResultKeywords []string `yaml:"result_keywords"`

	// DescriptiveKeywords mark summary-statistics and balance tables.
	DescriptiveKeywords []string `yaml:"descriptive_keywords"`

	// FigureKeywords veto entries that are figures, not tables.
	FigureKeywords []string `yaml:"figure_keywords"`

	// StatIndicators mark column headers typical of regression output.
	StatIndicators []string `yaml:"stat_indicators"`
}

// DefaultRuleset returns the compiled-in vocabulary.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		Version: "2024.1",
		ResultKeywords: []string{
			"effect", "impact", "treatment", "regression", "estimate",
			"coefficient", "outcome", "itt", "att", "ate", "difference-in-differences",
			"intent-to-treat", "p-value", "significance", "results",
		},
		DescriptiveKeywords: []string{
			"descriptive", "summary statistics", "baseline characteristics",
			"balance", "sample characteristics", "attrition", "means and standard deviations",
			"demographics",
		},
		FigureKeywords: []string{
			"figure", "fig.", "graph", "chart", "plot", "map of",
		},
		StatIndicators: []string{
			"se", "std. err", "standard error", "p-value", "p value",
			"95%", "ci", "coef", "t-stat", "z-score", "n =", "n=",
			"(1)", "(2)", "***",
		},
	}
}

// LoadRuleset reads a YAML ruleset file. An empty path returns the default.
func LoadRuleset(path string) (*Ruleset, error) {
	if path == "" {
		return DefaultRuleset(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read ruleset %s", path)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse ruleset %s", path)
	}
	if len(rs.ResultKeywords) == 0 {
		return nil, eris.Errorf("pipeline: ruleset %s has no result_keywords", path)
	}
	return &rs, nil
}
