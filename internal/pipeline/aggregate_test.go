package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakfield-research/qex-cli/internal/model"
)

func outcome(name, table, arm, subgroup string) model.OutcomeRecord {
	return model.OutcomeRecord{
		OutcomeName:  name,
		TableNumber:  table,
		TreatmentArm: arm,
		Subgroup:     subgroup,
		Method:       model.MethodTEIText,
	}
}

func TestAggregate_GroupsByExactName(t *testing.T) {
	result := Aggregate([]model.OutcomeRecord{
		outcome("consumption", "2", "pooled", ""),
		outcome("savings", "3", "", ""),
		outcome("consumption", "4", "women", "female-headed"),
		outcome("Consumption", "2", "", ""),
	})

	// Case differs, so "Consumption" and "consumption" are distinct groups.
	require.Len(t, result.Groups, 3)
	assert.Equal(t, "Consumption", result.Groups[0].Name)
	assert.Equal(t, "consumption", result.Groups[1].Name)
	assert.Equal(t, "savings", result.Groups[2].Name)

	consumption := result.Groups[1]
	assert.Equal(t, 2, consumption.VariationCount)
	assert.Equal(t, []string{"2", "4"}, consumption.Tables)
	assert.Equal(t, []string{"pooled", "women"}, consumption.TreatmentArms)
	assert.Equal(t, []string{"female-headed"}, consumption.Subgroups)
}

func TestAggregate_DescriptionFirstNonEmpty(t *testing.T) {
	result := Aggregate([]model.OutcomeRecord{
		{OutcomeName: "income", OutcomeDescription: ""},
		{OutcomeName: "income", OutcomeDescription: "monthly household income"},
		{OutcomeName: "income", OutcomeDescription: "a later description"},
	})

	require.Len(t, result.Groups, 1)
	assert.Equal(t, "monthly household income", result.Groups[0].Description)
	assert.Equal(t, 3, result.Groups[0].VariationCount)
}

func TestAggregate_Deterministic(t *testing.T) {
	outcomes := []model.OutcomeRecord{
		outcome("z", "1", "a", ""),
		outcome("a", "2", "b", ""),
		outcome("m", "3", "", "x"),
		outcome("a", "1", "a", ""),
	}

	first := Aggregate(outcomes)
	second := Aggregate(outcomes)
	assert.Equal(t, first, second)

	require.Len(t, first.Groups, 3)
	assert.Equal(t, "a", first.Groups[0].Name)
	assert.Equal(t, "m", first.Groups[1].Name)
	assert.Equal(t, "z", first.Groups[2].Name)
}

func TestAggregate_Empty(t *testing.T) {
	result := Aggregate(nil)
	assert.Empty(t, result.Groups)
}

func TestAggregate_RecordOrderPreserved(t *testing.T) {
	outcomes := []model.OutcomeRecord{
		{OutcomeName: "income", TableNumber: "3"},
		{OutcomeName: "income", TableNumber: "1"},
	}
	result := Aggregate(outcomes)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "3", result.Groups[0].Records[0].TableNumber)
	assert.Equal(t, "1", result.Groups[0].Records[1].TableNumber)
	assert.Equal(t, []string{"1", "3"}, result.Groups[0].Tables)
}
