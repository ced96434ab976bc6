package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/oakfield-research/qex-cli/internal/config"
	"github.com/oakfield-research/qex-cli/internal/llmjson"
	"github.com/oakfield-research/qex-cli/internal/model"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

const extractSystemPrompt = `You extract quantitative results from empirical papers with complete fidelity. You report every statistic for the requested tables: effect sizes, standard errors, p-values, confidence intervals, and sample sizes. You transcribe the literal source text for each statistic. You never invent numbers. A statistic the paper does not report is null, not zero.`

const extractUserPromptHeader = `Extract every outcome statistic reported in these tables: %s.

For each table, report whether its content was actually found in the paper text. For each outcome, report the exact values as printed. Use null for anything not reported.

Respond with JSON only, in this shape:
{
  "tables": [
    {
      "table_number": "1",
      "found": true,
      "outcomes": [
        {
          "outcome_name": "...",
          "outcome_description": "...",
          "treatment_arm": "...",
          "subgroup": "...",
          "effect_size": 0.12,
          "standard_error": 0.05,
          "p_value": 0.02,
          "confidence_interval": "[0.02, 0.22]",
          "sample_size": 1200,
          "literal_text": "exact text the numbers came from",
          "text_position": "where in the paper this appears"
        }
      ]
    }
  ]
}`

// Extractor runs the statistical extraction stage over the RESULTS tables,
// batching them to bound call count while the document itself rides in a
// cached system block shared across batches.
type Extractor struct {
	llm       *LLMRunner
	cfg       config.ExtractConfig
	modelName string
	maxTokens int64
}

// NewExtractor builds an Extractor.
func NewExtractor(llm *LLMRunner, cfg config.ExtractConfig, modelName string, maxTokens int64) *Extractor {
	return &Extractor{llm: llm, cfg: cfg, modelName: modelName, maxTokens: maxTokens}
}

type extractWire struct {
	Tables []struct {
		TableNumber llmjson.String `json:"table_number"`
		Found       bool           `json:"found"`
		Outcomes    []struct {
			OutcomeName        llmjson.String `json:"outcome_name"`
			OutcomeDescription llmjson.String `json:"outcome_description"`
			TreatmentArm       llmjson.String `json:"treatment_arm"`
			Subgroup           llmjson.String `json:"subgroup"`
			EffectSize         llmjson.Float  `json:"effect_size"`
			StandardError      llmjson.Float  `json:"standard_error"`
			PValue             llmjson.Float  `json:"p_value"`
			ConfidenceInterval llmjson.String `json:"confidence_interval"`
			SampleSize         llmjson.Int    `json:"sample_size"`
			LiteralText        llmjson.String `json:"literal_text"`
			TextPosition       llmjson.String `json:"text_position"`
		} `json:"outcomes"`
	} `json:"tables"`
}

// Extract pulls statistics from the given RESULTS tables. guidance carries
// extra reviewer instructions appended to every batch prompt. A batch that
// fails, on the API or on parsing, zeroes only its own tables and leaves a
// warning; other batches still run.
func (e *Extractor) Extract(ctx context.Context, doc *model.ParsedDocument, tables []model.TableReference, guidance []string) (*model.ExtractionResult, error) {
	result := &model.ExtractionResult{}
	if len(tables) == 0 {
		return result, nil
	}

	docText := truncateHead(doc.FullText(), e.cfg.MaxDocumentChars)

	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(tables)
	}

	for start := 0; start < len(tables); start += batchSize {
		end := start + batchSize
		if end > len(tables) {
			end = len(tables)
		}
		batch := tables[start:end]

		outcomes, statuses, err := e.extractBatch(ctx, doc.Key, docText, batch, guidance)
		if err != nil {
			zap.L().Warn("extraction batch failed",
				zap.String("key", doc.Key),
				zap.Strings("tables", tableNumbers(batch)),
				zap.Error(err),
			)
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"extraction failed for tables %s: %s", strings.Join(tableNumbers(batch), ", "), err))
			for _, t := range batch {
				result.Statuses = append(result.Statuses, model.TableStatus{TableNumber: t.Number})
			}
			continue
		}

		result.Outcomes = append(result.Outcomes, outcomes...)
		result.Statuses = append(result.Statuses, statuses...)
	}

	result.Warnings = append(result.Warnings, literalTextWarnings(doc.FullText(), result.Outcomes)...)

	zap.L().Info("extraction complete",
		zap.String("key", doc.Key),
		zap.Int("tables", len(tables)),
		zap.Int("outcomes", len(result.Outcomes)),
	)
	return result, nil
}

func (e *Extractor) extractBatch(ctx context.Context, key, docText string, batch []model.TableReference, guidance []string) ([]model.OutcomeRecord, []model.TableStatus, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, extractUserPromptHeader, strings.Join(tableNumbers(batch), ", "))
	prompt.WriteString("\n\nTABLES REQUESTED:\n")
	for _, t := range batch {
		fmt.Fprintf(&prompt, "Table %s: %s\n", t.Number, t.Caption)
	}
	for _, g := range guidance {
		fmt.Fprintf(&prompt, "\nADDITIONAL INSTRUCTION: %s\n", g)
	}

	req := anthropicRequest(e.modelName, e.maxTokens, "", prompt.String())
	req.System = anthropic.BuildCachedSystemBlocks(extractSystemPrompt, "PAPER:\n"+docText)

	resp, err := e.llm.Call(ctx, model.StageExtract, req)
	if err != nil {
		return nil, nil, err
	}

	var wire extractWire
	repaired, err := llmjson.Decode(resp.Text(), &wire)
	if err != nil {
		return nil, nil, fmt.Errorf("response unparseable: %w", err)
	}
	if repaired {
		zap.L().Warn("extraction response repaired",
			zap.String("key", key),
			zap.Strings("tables", tableNumbers(batch)),
		)
	}

	byNumber := map[string]bool{}
	var outcomes []model.OutcomeRecord
	var statuses []model.TableStatus
	for _, t := range wire.Tables {
		num := string(t.TableNumber)
		byNumber[num] = true
		status := model.TableStatus{TableNumber: num, Found: t.Found}
		for _, o := range t.Outcomes {
			if string(o.OutcomeName) == "" {
				continue
			}
			outcomes = append(outcomes, model.OutcomeRecord{
				OutcomeName:        string(o.OutcomeName),
				OutcomeDescription: string(o.OutcomeDescription),
				TreatmentArm:       string(o.TreatmentArm),
				Subgroup:           string(o.Subgroup),
				TableNumber:        num,
				EffectSize:         o.EffectSize.Ptr(),
				StandardError:      o.StandardError.Ptr(),
				PValue:             o.PValue.Ptr(),
				ConfidenceInterval: string(o.ConfidenceInterval),
				SampleSize:         o.SampleSize.Ptr(),
				LiteralText:        string(o.LiteralText),
				TextPosition:       string(o.TextPosition),
				Method:             model.MethodTEIText,
			})
			status.OutcomesFound++
		}
		if status.OutcomesFound > 0 {
			status.Method = model.MethodTEIText
		}
		statuses = append(statuses, status)
	}

	// Requested tables the model never mentioned count as not found.
	for _, t := range batch {
		if !byNumber[t.Number] {
			statuses = append(statuses, model.TableStatus{TableNumber: t.Number})
		}
	}

	return outcomes, statuses, nil
}

// literalTextWarnings flags transcriptions that are not verbatim substrings
// of the source text. A quote the document never contains usually means the
// numbers next to it were invented too.
func literalTextWarnings(docText string, outcomes []model.OutcomeRecord) []string {
	var warnings []string
	for _, o := range outcomes {
		if o.LiteralText != "" && !strings.Contains(docText, o.LiteralText) {
			warnings = append(warnings, fmt.Sprintf(
				"table %s outcome %q: literal text not found verbatim in document", o.TableNumber, o.OutcomeName))
		}
	}
	return warnings
}

func tableNumbers(tables []model.TableReference) []string {
	nums := make([]string, len(tables))
	for i, t := range tables {
		nums[i] = t.Number
	}
	return nums
}
