package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comparisons() []FieldComparison {
	return []FieldComparison{
		{StudyID: "a", Field: "country", Match: true, Reason: ReasonExactMatch},
		{StudyID: "b", Field: "country", Match: true, Reason: ReasonExactMatch},
		{StudyID: "a", Field: "effect_size", Match: false, Reason: ReasonValueMismatch},
		{StudyID: "b", Field: "effect_size", Match: true, Reason: ReasonWithinTolerance},
		{StudyID: "a", Field: "savings", Match: false, Reason: ReasonComponentAmbiguous},
		{StudyID: "b", Field: "savings", Match: false, Reason: ReasonValueMismatch},
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(comparisons())

	assert.Equal(t, 6, m.TotalComparisons)
	assert.Equal(t, 3, m.TotalMatches)
	assert.InDelta(t, 0.5, m.OverallAgreement, 1e-9)

	require.Len(t, m.Fields, 3)
	assert.Equal(t, "country", m.Fields[0].Field)
	assert.InDelta(t, 1.0, m.Fields[0].Agreement, 1e-9)
	assert.Equal(t, "effect_size", m.Fields[1].Field)
	assert.InDelta(t, 0.5, m.Fields[1].Agreement, 1e-9)
	assert.Equal(t, "savings", m.Fields[2].Field)
	assert.InDelta(t, 0.0, m.Fields[2].Agreement, 1e-9)

	assert.InDelta(t, 0.5, m.MeanFieldAgreement, 1e-9)
	assert.InDelta(t, 0.0, m.MinFieldAgreement, 1e-9)
	assert.Greater(t, m.StdDevFieldAgreement, 0.0)

	assert.Equal(t, 2, m.ReasonCounts[ReasonExactMatch])
	assert.Equal(t, 1, m.ReasonCounts[ReasonComponentAmbiguous])
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil)
	assert.Zero(t, m.TotalComparisons)
	assert.Zero(t, m.OverallAgreement)
	assert.Empty(t, m.Fields)
}

func TestReportText_FlagsLowAgreementFields(t *testing.T) {
	result := &Result{
		Comparisons:   comparisons(),
		UnmatchedKeys: []string{"orphan-2021"},
	}
	result.Metrics = ComputeMetrics(result.Comparisons)

	text := ReportText(result)
	assert.Contains(t, text, "Overall agreement: 50.0%")
	assert.Contains(t, text, "Fields below 70% agreement: effect_size, savings")
	assert.Contains(t, text, "orphan-2021")
	assert.NotContains(t, text, "country  <- review")
}
