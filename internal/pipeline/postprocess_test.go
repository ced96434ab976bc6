package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakfield-research/qex-cli/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestFlatten_OneRowPerRecord(t *testing.T) {
	groups := []model.OutcomeGroup{
		{
			Name: "consumption",
			Records: []model.OutcomeRecord{
				{OutcomeName: "consumption", TableNumber: "2", EffectSize: floatPtr(0.1), Method: model.MethodTEIText},
				{OutcomeName: "consumption", TableNumber: "4", Method: model.MethodPDFVision},
			},
		},
		{
			Name:    "savings",
			Records: []model.OutcomeRecord{{OutcomeName: "savings", TableNumber: "3"}},
		},
	}

	records := Flatten("smith-2020", groups)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "smith-2020", r.StudyID)
		assert.Equal(t, "smith-2020", r.Key)
	}
	assert.Equal(t, "pdf_vision", records[1].Method)
}

func TestValidate_CountsMissingFields(t *testing.T) {
	records := []model.FlatRecord{
		{
			OutcomeName:   "a",
			EffectSize:    floatPtr(0.5),
			StandardError: floatPtr(0.1),
			PValue:        floatPtr(0.03),
			LiteralText:   "0.5 (0.1)",
			TextPosition:  "Table 1",
		},
		{OutcomeName: "b"},
	}

	report := Validate(records)
	assert.Equal(t, 2, report.TotalRecords)
	assert.Equal(t, 1, report.MissingEffectSize)
	assert.Equal(t, 1, report.MissingStandardError)
	assert.Equal(t, 1, report.MissingPValue)
	assert.Equal(t, 1, report.MissingLiteralText)
	assert.Equal(t, 1, report.MissingTextPosition)
	assert.InDelta(t, 0.5, report.CompletenessRate, 1e-9)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, 1, report.Issues[0].Index)
	assert.Contains(t, report.Issues[0].Issues, "missing effect_size")
}

func TestValidate_FlagsImplausibleValues(t *testing.T) {
	records := []model.FlatRecord{
		{OutcomeName: "huge", EffectSize: floatPtr(2500)},
		{OutcomeName: "bad-p", PValue: floatPtr(1.4)},
		{OutcomeName: "fine", EffectSize: floatPtr(-999), PValue: floatPtr(1.0)},
	}

	report := Validate(records)
	require.Len(t, report.QualityWarnings, 2)
	assert.Contains(t, report.QualityWarnings[0], "implausible effect size 2500")
	assert.Contains(t, report.QualityWarnings[1], "invalid p-value 1.4")
}

func TestValidate_Empty(t *testing.T) {
	report := Validate(nil)
	assert.Zero(t, report.TotalRecords)
	assert.Zero(t, report.CompletenessRate)
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	agg := Aggregate([]model.OutcomeRecord{
		{OutcomeName: "income", TableNumber: "2", EffectSize: floatPtr(0.2), LiteralText: "0.2*", Method: model.MethodTEIText},
	})
	post := Postprocess("doe-2019", agg)

	require.NoError(t, WriteOutputs(dir, "doe-2019", post))

	csvData, err := os.ReadFile(filepath.Join(dir, "doe-2019", "doe-2019_final.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "study_id")
	assert.Contains(t, string(csvData), "doe-2019")
	assert.Contains(t, string(csvData), "income")

	jsonData, err := os.ReadFile(filepath.Join(dir, "doe-2019", "doe-2019_final.json"))
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"outcome_name": "income"`)

	summary, err := os.ReadFile(filepath.Join(dir, "doe-2019", "doe-2019_summary.txt"))
	require.NoError(t, err)
	text := string(summary)
	assert.True(t, strings.HasPrefix(text, "Extraction summary for doe-2019"))
	assert.Contains(t, text, "Records: 1")
	assert.Contains(t, text, "effect_size")
}
