package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oakfield-research/qex-cli/internal/config"
	"github.com/oakfield-research/qex-cli/internal/model"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

func extractConfig() config.ExtractConfig {
	return config.ExtractConfig{BatchSize: 5, MaxDocumentChars: 150000}
}

func tables(nums ...string) []model.TableReference {
	out := make([]model.TableReference, len(nums))
	for i, n := range nums {
		out[i] = model.TableReference{Number: n, Caption: "Table " + n}
	}
	return out
}

func TestExtract_SingleBatch(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"tables": [
			{
				"table_number": "1",
				"found": true,
				"outcomes": [
					{
						"outcome_name": "household consumption",
						"treatment_arm": "pooled",
						"effect_size": 0.12,
						"standard_error": "0.05",
						"p_value": 0.02,
						"confidence_interval": "[0.02, 0.22]",
						"sample_size": "1,200",
						"literal_text": "0.12** (0.05)",
						"text_position": "Table 1, row 3"
					},
					{
						"outcome_name": "savings",
						"effect_size": null,
						"p_value": "n.s.",
						"literal_text": "n.s."
					}
				]
			},
			{"table_number": "2", "found": false, "outcomes": []}
		]
	}`), nil).Once()

	e := NewExtractor(newTestRunner(client), extractConfig(), "claude-sonnet-4-5-20250929", 8192)
	result, err := e.Extract(context.Background(), testDoc(), tables("1", "2"), nil)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	first := result.Outcomes[0]
	assert.Equal(t, "household consumption", first.OutcomeName)
	require.NotNil(t, first.EffectSize)
	assert.InDelta(t, 0.12, *first.EffectSize, 1e-9)
	require.NotNil(t, first.StandardError)
	assert.InDelta(t, 0.05, *first.StandardError, 1e-9)
	require.NotNil(t, first.SampleSize)
	assert.Equal(t, 1200, *first.SampleSize)
	assert.Equal(t, "0.12** (0.05)", first.LiteralText)
	assert.Equal(t, model.MethodTEIText, first.Method)

	second := result.Outcomes[1]
	assert.Nil(t, second.EffectSize)
	assert.Nil(t, second.PValue)

	s1, ok := result.StatusFor("1")
	require.True(t, ok)
	assert.True(t, s1.Found)
	assert.Equal(t, 2, s1.OutcomesFound)

	s2, ok := result.StatusFor("2")
	require.True(t, ok)
	assert.False(t, s2.Found)
	assert.Zero(t, s2.OutcomesFound)
	client.AssertExpectations(t)
}

func TestExtract_BatchesTables(t *testing.T) {
	client := &mockAnthropicClient{}
	// Seven tables at batch size 5 means exactly two calls.
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(
		textResponse(`{"tables": []}`), nil).Twice()

	e := NewExtractor(newTestRunner(client), extractConfig(), "claude-sonnet-4-5-20250929", 8192)
	result, err := e.Extract(context.Background(), testDoc(), tables("1", "2", "3", "4", "5", "6", "7"), nil)
	require.NoError(t, err)

	// Every requested table gets a status even when the model omits it.
	assert.Len(t, result.Statuses, 7)
	for _, s := range result.Statuses {
		assert.False(t, s.Found)
	}
	client.AssertExpectations(t)
}

func TestExtract_FailedBatchIsIsolated(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(
		nil, errors.New("invalid request")).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"tables": [{"table_number": "6", "found": true, "outcomes": [
			{"outcome_name": "income", "effect_size": 42.0, "literal_text": "42.0"}
		]}]
	}`), nil).Once()

	e := NewExtractor(newTestRunner(client), extractConfig(), "claude-sonnet-4-5-20250929", 8192)
	doc := testDoc()
	doc.Body += " The income effect was 42.0 (SE 3.1)."
	result, err := e.Extract(context.Background(), doc, tables("1", "2", "3", "4", "5", "6"), nil)
	require.NoError(t, err)

	// Tables 1-5 were in the failed batch.
	for _, num := range []string{"1", "2", "3", "4", "5"} {
		s, ok := result.StatusFor(num)
		require.True(t, ok, num)
		assert.False(t, s.Found, num)
	}
	s6, ok := result.StatusFor("6")
	require.True(t, ok)
	assert.True(t, s6.Found)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "income", result.Outcomes[0].OutcomeName)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "1, 2, 3, 4, 5")
	client.AssertExpectations(t)
}

func TestExtract_FlagsNonVerbatimLiteralText(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"tables": [{"table_number": "1", "found": true, "outcomes": [
			{"outcome_name": "consumption", "effect_size": 0.12, "literal_text": "0.12** (0.05)"},
			{"outcome_name": "assets", "effect_size": 0.30, "literal_text": "0.30* (0.11)"}
		]}]
	}`), nil).Once()

	doc := testDoc()
	doc.Body += " The consumption effect is 0.12** (0.05)."

	e := NewExtractor(newTestRunner(client), extractConfig(), "claude-sonnet-4-5-20250929", 8192)
	result, err := e.Extract(context.Background(), doc, tables("1"), nil)
	require.NoError(t, err)

	// The transcription the document actually contains passes; the one it
	// doesn't gets flagged.
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], `"assets"`)
	assert.Contains(t, result.Warnings[0], "not found verbatim")
	require.Len(t, result.Outcomes, 2)
}

func TestExtract_DocumentRidesInCachedSystemBlock(t *testing.T) {
	client := &mockAnthropicClient{}
	var req anthropic.MessageRequest
	client.On("CreateMessage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req = args.Get(1).(anthropic.MessageRequest)
	}).Return(textResponse(`{"tables": []}`), nil).Once()

	e := NewExtractor(newTestRunner(client), extractConfig(), "claude-sonnet-4-5-20250929", 8192)
	doc := testDoc()
	_, err := e.Extract(context.Background(), doc, tables("1"), []string{"prefer ITT estimates"})
	require.NoError(t, err)

	require.Len(t, req.System, 2)
	assert.Nil(t, req.System[0].CacheControl)
	require.NotNil(t, req.System[1].CacheControl)
	assert.Contains(t, req.System[1].Text, doc.Body)

	userText := req.Messages[0].Content[0].Text
	assert.Contains(t, userText, "prefer ITT estimates")
	assert.Contains(t, userText, fmt.Sprintf("Table %s", "1"))
}

func TestExtract_NoTablesNoCalls(t *testing.T) {
	client := &mockAnthropicClient{}
	e := NewExtractor(newTestRunner(client), extractConfig(), "claude-sonnet-4-5-20250929", 8192)
	result, err := e.Extract(context.Background(), testDoc(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}
