package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericEngine() *Engine {
	return NewEngine([]FieldSpec{{Name: "v", Type: FieldNumeric}}, 0.01)
}

func TestCompareNumeric_Tolerance(t *testing.T) {
	e := numericEngine()

	tests := []struct {
		llm, human string
		match      bool
		reason     string
	}{
		{"100", "100", true, ReasonExactMatch},
		{"100", "100.9", true, ReasonWithinTolerance},
		{"100.9", "100", true, ReasonWithinTolerance},
		{"100", "102", false, ReasonValueMismatch},
		// The band is relative to the human value: 1.01/100 exceeds 1%.
		{"101.01", "100", false, ReasonValueMismatch},
		{"-0.12", "-0.121", true, ReasonWithinTolerance},
		{"1,200", "1200", true, ReasonExactMatch},
		{"50%", "50", true, ReasonExactMatch},
	}
	for _, tt := range tests {
		match, reason := e.compareField(FieldSpec{Name: "v", Type: FieldNumeric}, tt.llm, tt.human)
		assert.Equal(t, tt.match, match, "%s vs %s", tt.llm, tt.human)
		assert.Equal(t, tt.reason, reason, "%s vs %s", tt.llm, tt.human)
	}
}

func TestCompareNumeric_ZeroNeverWithinTolerance(t *testing.T) {
	e := numericEngine()
	spec := FieldSpec{Name: "v", Type: FieldNumeric}

	match, reason := e.compareField(spec, "0", "0.001")
	assert.False(t, match)
	assert.Equal(t, ReasonValueMismatch, reason)

	match, reason = e.compareField(spec, "0.001", "0")
	assert.False(t, match)
	assert.Equal(t, ReasonValueMismatch, reason)

	match, reason = e.compareField(spec, "0", "0")
	assert.True(t, match)
	assert.Equal(t, ReasonExactMatch, reason)
}

func TestCompareNumeric_UnparseableFallsBackToString(t *testing.T) {
	e := numericEngine()
	spec := FieldSpec{Name: "v", Type: FieldNumeric}

	match, reason := e.compareField(spec, "not significant", "Not Significant")
	assert.True(t, match)
	assert.Equal(t, ReasonExactMatch, reason)
}

func TestCompareField_MissingValues(t *testing.T) {
	e := numericEngine()
	spec := FieldSpec{Name: "v", Type: FieldNumeric}

	match, reason := e.compareField(spec, "", "5")
	assert.False(t, match)
	assert.Equal(t, ReasonLLMMissing, reason)

	match, reason = e.compareField(spec, "5", "")
	assert.False(t, match)
	assert.Equal(t, ReasonHumanMissing, reason)

	match, reason = e.compareField(spec, "nan", "none")
	assert.True(t, match)
	assert.Equal(t, ReasonBothNull, reason)

	// Coder shorthand is not null: it reaches the unclear-code rule instead.
	match, reason = e.compareField(spec, "5", "NA")
	assert.False(t, match)
	assert.Equal(t, ReasonValueMismatch, reason)
}

func TestCompareCategorical_UnclearCodes(t *testing.T) {
	e := NewEngine(nil, 0.01)
	spec := FieldSpec{Name: "country", Type: FieldCategorical}

	tests := []struct{ llm, human string }{
		{"unclear", "unknown"},
		{"NR", "unclear"},
		{"?", "Not Reported"},
		{"n/a", "na"},
	}
	for _, tt := range tests {
		match, reason := e.compareField(spec, tt.llm, tt.human)
		assert.True(t, match, "%q vs %q", tt.llm, tt.human)
		assert.Equal(t, ReasonBothUnclear, reason, "%q vs %q", tt.llm, tt.human)
	}
}

func TestCompareComponent_Normalization(t *testing.T) {
	tests := []struct {
		llm, human string
		match      bool
		reason     string
	}{
		{"1", "Yes", true, ReasonExactMatch},
		{"1.0", "yes", true, ReasonExactMatch},
		{"yes", "Y", true, ReasonExactMatch},
		{"0", "No", true, ReasonExactMatch},
		{"N", "0.0", true, ReasonExactMatch},
		{"Yes", "No", false, ReasonValueMismatch},
		{"unclear", "NR", true, ReasonBothUnclear},
		{"?", "not reported", true, ReasonBothUnclear},
		{"unclear", "", false, ReasonComponentAmbiguous},
		{"", "unknown", false, ReasonComponentAmbiguous},
		{"", "none", true, ReasonExactMatch},
		{"yes", "", false, ReasonValueMismatch},
	}
	for _, tt := range tests {
		match, reason := compareComponent(tt.llm, tt.human)
		assert.Equal(t, tt.match, match, "%q vs %q", tt.llm, tt.human)
		assert.Equal(t, tt.reason, reason, "%q vs %q", tt.llm, tt.human)
	}
}

func TestCompareCategorical(t *testing.T) {
	match, reason := compareCategorical("Kenya", "kenya")
	assert.True(t, match)
	assert.Equal(t, ReasonExactMatch, reason)

	match, reason = compareCategorical("randomized controlled trial", "RCT (randomized controlled trial)")
	assert.True(t, match)
	assert.Equal(t, ReasonSubstringMatch, reason)

	match, _ = compareCategorical("Kenya", "Uganda")
	assert.False(t, match)
}

func TestCompareText_Containment(t *testing.T) {
	match, reason := compareText("consumption", "household consumption per capita")
	assert.True(t, match)
	assert.Equal(t, ReasonSubstringMatch, reason)

	match, reason = compareText("Impact of Cash Transfers: Evidence from Kenya", "impact of cash transfers")
	assert.True(t, match)
	assert.Equal(t, ReasonSubstringMatch, reason)
}

func TestCompareText_WordOverlap(t *testing.T) {
	match, reason := compareText(
		"The impact of cash transfers on consumption",
		"Impact of cash transfers on household consumption",
	)
	assert.True(t, match)
	assert.Equal(t, ReasonWordOverlap, reason)

	match, _ = compareText("graduation program evaluation", "fisheries management reform")
	assert.False(t, match)
}

func TestEngine_Compare(t *testing.T) {
	e := NewEngine([]FieldSpec{
		{Name: "country", Type: FieldCategorical},
		{Name: "effect_size", Type: FieldNumeric},
		{Name: "savings", Type: FieldComponent},
	}, 0.01)

	llm := []StudyRecord{
		{StudyID: "smith-2020", Fields: map[string]string{
			"country": "Kenya", "effect_size": "0.12", "savings": "1",
		}},
		{StudyID: "orphan-2021", Fields: map[string]string{"country": "Ghana"}},
	}
	human := []StudyRecord{
		{StudyID: "S1", Fields: map[string]string{
			"country": "kenya", "effect_size": "0.15", "savings": "Yes",
		}},
	}
	mapping := map[string]string{"S1": "smith-2020"}

	result := e.Compare(llm, human, mapping)
	require.Len(t, result.Comparisons, 3)

	byField := map[string]FieldComparison{}
	for _, c := range result.Comparisons {
		byField[c.Field] = c
		assert.Equal(t, "S1", c.StudyID)
	}
	assert.True(t, byField["country"].Match)
	assert.False(t, byField["effect_size"].Match)
	assert.True(t, byField["savings"].Match)

	assert.Equal(t, []string{"orphan-2021"}, result.UnmatchedKeys)

	require.NotNil(t, result.Metrics)
	assert.Equal(t, 3, result.Metrics.TotalComparisons)
	assert.Equal(t, 2, result.Metrics.TotalMatches)
	assert.InDelta(t, 2.0/3.0, result.Metrics.OverallAgreement, 1e-9)
}

func TestEngine_CompareWithoutMapping(t *testing.T) {
	e := NewEngine([]FieldSpec{{Name: "country", Type: FieldCategorical}}, 0.01)

	llm := []StudyRecord{{StudyID: "k1", Fields: map[string]string{"country": "Peru"}}}
	human := []StudyRecord{{StudyID: "k1", Fields: map[string]string{"country": "Peru"}}}

	result := e.Compare(llm, human, nil)
	require.Len(t, result.Comparisons, 1)
	assert.True(t, result.Comparisons[0].Match)
}
