package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/oakfield-research/qex-cli/internal/config"
	"github.com/oakfield-research/qex-cli/internal/llmjson"
	"github.com/oakfield-research/qex-cli/internal/model"
)

const discoverySystemPrompt = `You are an expert at reading empirical economics and public health papers. You identify every table the paper contains, including tables only referenced in the text, appendix tables, and tables whose content appears inline.`

const discoveryUserPrompt = `List every table in the following paper. For each table report its number exactly as printed (e.g. "1", "A2", "III"), its caption, where in the paper it appears, and when the table content is visible in the text, its column headers and up to three sample rows.

Respond with JSON only, in this shape:
{
  "tables": [
    {
      "table_number": "1",
      "caption": "...",
      "location": "results section",
      "table_type": "structured",
      "confidence": 0.9,
      "headers": ["...", "..."],
      "sample_rows": [["...", "..."]]
    }
  ],
  "confidence": 0.9
}

Per table, "table_type" is "structured" when the table appears as a formatted grid and "paragraph" when its values are embedded in running text, and "confidence" is your confidence (0 to 1) in that entry. The top-level "confidence" is your overall confidence that the list is complete.

PAPER:
%s`

// Discoverer runs the table discovery stage: one model call over the
// document text producing the table inventory later stages work from.
type Discoverer struct {
	llm       *LLMRunner
	cfg       config.DiscoveryConfig
	modelName string
	maxTokens int64
}

// NewDiscoverer builds a Discoverer.
func NewDiscoverer(llm *LLMRunner, cfg config.DiscoveryConfig, modelName string, maxTokens int64) *Discoverer {
	return &Discoverer{llm: llm, cfg: cfg, modelName: modelName, maxTokens: maxTokens}
}

type discoveryWire struct {
	Tables []struct {
		TableNumber llmjson.String `json:"table_number"`
		Caption     string         `json:"caption"`
		Location    string         `json:"location"`
		TableType   string         `json:"table_type"`
		Confidence  llmjson.Float  `json:"confidence"`
		Headers     []string       `json:"headers"`
		SampleRows  [][]string     `json:"sample_rows"`
	} `json:"tables"`
	Confidence float64 `json:"confidence"`
}

// Discover inventories the document's tables. A response that cannot be
// parsed even after repair yields an empty inventory with a warning, not an
// error: downstream stages must keep running.
func (d *Discoverer) Discover(ctx context.Context, doc *model.ParsedDocument) (*model.DiscoveryResult, error) {
	text := truncateHead(doc.FullText(), d.cfg.MaxDocumentChars)

	resp, err := d.llm.Call(ctx, model.StageDiscover, anthropicRequest(
		d.modelName, d.maxTokens,
		discoverySystemPrompt,
		fmt.Sprintf(discoveryUserPrompt, text),
	))
	if err != nil {
		return nil, err
	}

	result := &model.DiscoveryResult{Parse: model.ParseOK, RawResponse: resp.Text()}

	var wire discoveryWire
	repaired, err := llmjson.Decode(resp.Text(), &wire)
	if err != nil {
		zap.L().Warn("discovery response unparseable",
			zap.String("key", doc.Key),
			zap.Error(err),
		)
		result.Parse = model.ParseMalformedEmpty
		result.Warnings = append(result.Warnings, "discovery response could not be parsed; table inventory is empty")
		return result, nil
	}
	if repaired {
		result.Parse = model.ParseRepaired
		result.Warnings = append(result.Warnings, "discovery response was truncated and repaired")
	}

	for _, t := range wire.Tables {
		result.Tables = append(result.Tables, model.TableReference{
			Number:     string(t.TableNumber),
			Caption:    t.Caption,
			Location:   t.Location,
			TableType:  t.TableType,
			Confidence: t.Confidence.Val,
			Headers:    t.Headers,
			SampleRows: t.SampleRows,
		})
	}
	result.Confidence = wire.Confidence
	result.Warnings = append(result.Warnings, d.inventoryWarnings(result)...)

	zap.L().Info("tables discovered",
		zap.String("key", doc.Key),
		zap.Int("tables", len(result.Tables)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// inventoryWarnings flags numbering gaps, duplicate numbers, and low model
// confidence. Gap detection only considers purely numeric table numbers;
// lettered appendix tables ("A2") don't form a checkable sequence.
func (d *Discoverer) inventoryWarnings(result *model.DiscoveryResult) []string {
	var warnings []string

	seen := map[string]int{}
	var numeric []int
	for _, t := range result.Tables {
		seen[t.Number]++
		if n, err := strconv.Atoi(t.Number); err == nil {
			numeric = append(numeric, n)
		}
	}

	for num, count := range seen {
		if count > 1 {
			warnings = append(warnings, fmt.Sprintf("table %s listed %d times", num, count))
		}
	}
	sort.Strings(warnings)

	// A zero per-table confidence means the model omitted it.
	for _, t := range result.Tables {
		if t.Confidence > 0 && t.Confidence < d.cfg.ConfidenceThreshold {
			warnings = append(warnings, fmt.Sprintf(
				"table %s confidence %.2f below threshold %.2f", t.Number, t.Confidence, d.cfg.ConfidenceThreshold))
		}
	}

	if d.cfg.WarnOnGaps && len(numeric) > 1 {
		sort.Ints(numeric)
		prev := numeric[0]
		for _, n := range numeric[1:] {
			if n > prev+1 {
				warnings = append(warnings, fmt.Sprintf("table numbering gap between %d and %d", prev, n))
			}
			prev = n
		}
	}

	if result.Confidence < d.cfg.ConfidenceThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"discovery confidence %.2f below threshold %.2f", result.Confidence, d.cfg.ConfidenceThreshold))
	}

	return warnings
}
