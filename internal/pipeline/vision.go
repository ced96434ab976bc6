package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/oakfield-research/qex-cli/internal/config"
	"github.com/oakfield-research/qex-cli/internal/llmjson"
	"github.com/oakfield-research/qex-cli/internal/model"
	"github.com/oakfield-research/qex-cli/internal/raster"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

// Vision trigger policies.
const (
	VisionNever       = "never"
	VisionAlways      = "always"
	VisionIntelligent = "intelligent"
)

// MissingTables decides which RESULTS tables the vision fallback should
// target. Under the intelligent policy a table is missing when text
// extraction never found its content; a table that was found but yielded no
// outcomes is left alone and only warned about, since rendering it again
// rarely helps.
func MissingTables(classified *model.ClassifyResult, extraction *model.ExtractionResult, policy string) ([]model.TableReference, []string) {
	results := classified.ResultsTables()

	switch policy {
	case VisionNever:
		return nil, nil
	case VisionAlways:
		sortTables(results)
		return results, nil
	}

	var missing []model.TableReference
	var warnings []string
	for _, t := range results {
		status, ok := extraction.StatusFor(t.Number)
		if !ok || !status.Found {
			missing = append(missing, t)
			continue
		}
		if status.OutcomesFound == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"table %s was found in text but produced no outcomes", t.Number))
		}
	}
	sortTables(missing)
	return missing, warnings
}

func sortTables(tables []model.TableReference) {
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
}

const visionSystemPrompt = `You read rendered pages of an academic paper and extract quantitative results from specific tables. You only report statistics you can actually see in the images. If a requested table does not appear on these pages, report it as not found. You never invent numbers.`

const visionUserPrompt = `These images are pages of the paper. Extract every outcome statistic from these tables only: %s.

Respond with JSON only, in this shape:
{
  "tables": [
    {
      "table_number": "1",
      "found": true,
      "outcomes": [
        {
          "outcome_name": "...",
          "treatment_arm": "...",
          "subgroup": "...",
          "effect_size": 0.12,
          "standard_error": 0.05,
          "p_value": 0.02,
          "confidence_interval": "[0.02, 0.22]",
          "sample_size": 1200,
          "literal_text": "the cell values as printed"
        }
      ]
    }
  ]
}

Use null for anything the table does not report. Ignore every table not in the requested list.`

// VisionExtractor recovers statistics from tables the text pathway missed by
// rendering the PDF and showing the pages to a vision model.
type VisionExtractor struct {
	llm        *LLMRunner
	rasterizer *raster.Rasterizer
	cfg        config.VisionConfig
	modelName  string
	maxTokens  int64
}

// NewVisionExtractor builds a VisionExtractor.
func NewVisionExtractor(llm *LLMRunner, rasterizer *raster.Rasterizer, cfg config.VisionConfig, modelName string, maxTokens int64) *VisionExtractor {
	return &VisionExtractor{llm: llm, rasterizer: rasterizer, cfg: cfg, modelName: modelName, maxTokens: maxTokens}
}

// Extract runs the vision fallback for the missing tables. Rasterization
// problems and a missing PDF degrade to warnings rather than errors so the
// text-pathway results still flow through the rest of the pipeline.
func (v *VisionExtractor) Extract(ctx context.Context, key, pdfPath string, missing []model.TableReference) (*model.ExtractionResult, error) {
	result := &model.ExtractionResult{}
	if len(missing) == 0 {
		return result, nil
	}

	if _, err := os.Stat(pdfPath); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"pdf %s unavailable; vision fallback skipped for tables %s",
			pdfPath, strings.Join(tableNumbers(missing), ", ")))
		return result, nil
	}

	pages, err := v.rasterizer.Render(ctx, pdfPath)
	if err != nil {
		zap.L().Warn("rasterization failed",
			zap.String("key", key),
			zap.String("pdf", pdfPath),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, fmt.Sprintf("rasterization failed: %s", err))
		for _, t := range missing {
			result.Statuses = append(result.Statuses, model.TableStatus{TableNumber: t.Number})
		}
		return result, nil
	}

	outcomesByTable := map[string][]model.OutcomeRecord{}

	batchSize := v.cfg.PageBatchSize
	if batchSize <= 0 {
		batchSize = len(pages)
	}
	for start := 0; start < len(pages); start += batchSize {
		end := start + batchSize
		if end > len(pages) {
			end = len(pages)
		}

		wire, err := v.extractPages(ctx, pages[start:end], missing)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"vision extraction failed on pages %d-%d: %s", pages[start].Number, pages[end-1].Number, err))
			continue
		}

		for _, t := range wire.Tables {
			num := string(t.TableNumber)
			for _, o := range t.Outcomes {
				if string(o.OutcomeName) == "" {
					continue
				}
				outcomesByTable[num] = append(outcomesByTable[num], model.OutcomeRecord{
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
					Method:             model.MethodPDFVision,
				})
			}
		}
	}

	for _, t := range missing {
		outcomes := outcomesByTable[t.Number]
		status := model.TableStatus{
			TableNumber:   t.Number,
			Found:         len(outcomes) > 0,
			OutcomesFound: len(outcomes),
		}
		if status.Found {
			status.Method = model.MethodPDFVision
		}
		result.Outcomes = append(result.Outcomes, outcomes...)
		result.Statuses = append(result.Statuses, status)
	}

	zap.L().Info("vision fallback complete",
		zap.String("key", key),
		zap.Int("pages", len(pages)),
		zap.Int("tables_requested", len(missing)),
		zap.Int("outcomes", len(result.Outcomes)),
	)
	return result, nil
}

func (v *VisionExtractor) extractPages(ctx context.Context, pages []raster.Page, missing []model.TableReference) (*extractWire, error) {
	parts := make([]anthropic.ContentPart, 0, len(pages)+1)
	for _, p := range pages {
		parts = append(parts, anthropic.ImagePart("image/png", p.PNG))
	}
	parts = append(parts, anthropic.TextPart(
		fmt.Sprintf(visionUserPrompt, strings.Join(tableNumbers(missing), ", "))))

	resp, err := v.llm.Call(ctx, model.StageVision, anthropic.MessageRequest{
		Model:     v.modelName,
		MaxTokens: v.maxTokens,
		System:    []anthropic.SystemBlock{{Text: visionSystemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: parts}},
	})
	if err != nil {
		return nil, err
	}

	var wire extractWire
	if _, err := llmjson.Decode(resp.Text(), &wire); err != nil {
		return nil, fmt.Errorf("response unparseable: %w", err)
	}
	return &wire, nil
}
