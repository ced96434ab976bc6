package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oakfield-research/qex-cli/internal/llmjson"
	"github.com/oakfield-research/qex-cli/internal/model"
)

// Classifier decides which discovered tables carry extractable results.
type Classifier interface {
	Classify(ctx context.Context, doc *model.ParsedDocument, tables []model.TableReference) (*model.ClassifyResult, error)
}

// NewClassifier selects a classification strategy.
func NewClassifier(strategy string, rules *Ruleset, threshold float64, llm *LLMRunner, modelName string, maxTokens int64) (Classifier, error) {
	switch strategy {
	case "", "heuristic":
		return &heuristicClassifier{rules: rules, threshold: threshold}, nil
	case "llm":
		return &llmClassifier{
			llm:       llm,
			modelName: modelName,
			maxTokens: maxTokens,
			threshold: threshold,
			fallback:  &heuristicClassifier{rules: rules, threshold: threshold},
		}, nil
	default:
		return nil, eris.Errorf("pipeline: unknown classify strategy %q", strategy)
	}
}

// contextWindow is how far around a "Table N" mention the heuristic looks
// for result vocabulary.
const contextWindow = 500

type heuristicClassifier struct {
	rules     *Ruleset
	threshold float64
}

// Classify scores each table on caption, header, and textual context
// signals. Figure entries are vetoed outright. The scoring is pure, so
// classifying the same inventory twice gives identical output.
func (c *heuristicClassifier) Classify(_ context.Context, doc *model.ParsedDocument, tables []model.TableReference) (*model.ClassifyResult, error) {
	result := &model.ClassifyResult{Strategy: "heuristic"}
	docText := ""
	if doc != nil {
		docText = strings.ToLower(doc.FullText())
	}

	for _, t := range tables {
		caption, vetoed := c.captionScore(t.Caption)
		if vetoed {
			result.Dropped = append(result.Dropped, t)
			continue
		}
		header := c.headerScore(t)
		classification := model.TableClassification{
			Table: t,
			Signals: map[string]model.SignalScore{
				"caption": caption,
				"header":  header,
			},
		}

		if docText == "" {
			classification.Score = 0.5*caption.Score + 0.5*header.Score
		} else {
			ctxScore := c.contextScore(docText, t.Number)
			classification.Signals["context"] = ctxScore
			classification.Score = 0.4*caption.Score + 0.4*header.Score + 0.2*ctxScore.Score
		}

		classification.Category = c.categorize(classification.Score)
		result.Classifications = append(result.Classifications, classification)
	}

	return result, nil
}

// categorize is binary: anything below the results threshold is descriptive.
func (c *heuristicClassifier) categorize(score float64) model.TableCategory {
	if score >= c.threshold {
		return model.CategoryResults
	}
	return model.CategoryDescriptive
}

func (c *heuristicClassifier) captionScore(caption string) (model.SignalScore, bool) {
	lower := strings.ToLower(caption)

	if containsAny(lower, c.rules.FigureKeywords) {
		return model.SignalScore{}, true
	}
	if containsAny(lower, c.rules.DescriptiveKeywords) {
		return model.SignalScore{Score: 0.1, Reason: "descriptive keyword in caption"}, false
	}

	hits := countMatches(lower, c.rules.ResultKeywords)
	switch {
	case hits >= 2:
		return model.SignalScore{Score: 0.9, Reason: fmt.Sprintf("%d result keywords in caption", hits)}, false
	case hits == 1:
		return model.SignalScore{Score: 0.7, Reason: "one result keyword in caption"}, false
	default:
		return model.SignalScore{Score: 0.5, Reason: "no caption signal"}, false
	}
}

func (c *heuristicClassifier) headerScore(t model.TableReference) model.SignalScore {
	if len(t.Headers) == 0 && len(t.SampleRows) == 0 {
		return model.SignalScore{Score: 0.5, Reason: "no table content available"}
	}
	// One header line plus sample rows; fewer than two rows of structure
	// is not enough to judge.
	if rowCount := 1 + len(t.SampleRows); rowCount < 2 && len(t.Headers) == 0 {
		return model.SignalScore{Score: 0.5, Reason: "insufficient structure"}
	}

	joined := strings.ToLower(strings.Join(t.Headers, " "))
	hits := countMatches(joined, c.rules.StatIndicators)
	switch {
	case hits >= 3:
		return model.SignalScore{Score: 0.9, Reason: fmt.Sprintf("%d statistical indicators in headers", hits)}
	case hits >= 1:
		return model.SignalScore{Score: 0.7, Reason: fmt.Sprintf("%d statistical indicators in headers", hits)}
	default:
		return model.SignalScore{Score: 0.3, Reason: "no statistical indicators in headers"}
	}
}

func (c *heuristicClassifier) contextScore(docText, tableNumber string) model.SignalScore {
	mention := "table " + strings.ToLower(tableNumber)

	var total, withResults int
	for i := 0; ; {
		idx := strings.Index(docText[i:], mention)
		if idx < 0 {
			break
		}
		pos := i + idx
		total++

		start := pos - contextWindow
		if start < 0 {
			start = 0
		}
		end := pos + len(mention) + contextWindow
		if end > len(docText) {
			end = len(docText)
		}
		if containsAny(docText[start:end], c.rules.ResultKeywords) {
			withResults++
		}

		i = pos + len(mention)
	}

	switch {
	case total == 0:
		return model.SignalScore{Score: 0.5, Reason: "table never referenced in text"}
	case withResults*2 > total:
		return model.SignalScore{Score: 0.8, Reason: "most references near result vocabulary"}
	case withResults > 0:
		return model.SignalScore{Score: 0.6, Reason: "some references near result vocabulary"}
	default:
		return model.SignalScore{Score: 0.4, Reason: "references lack result vocabulary"}
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func countMatches(s string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(s, k) {
			n++
		}
	}
	return n
}

// --- LLM strategy ---

const classifySystemPrompt = `You classify tables from empirical papers as RESULTS (treatment effects, regression estimates) or DESCRIPTIVE (summary statistics, balance, attrition, anything else). Respond with JSON only.`

const classifyUserPrompt = `Classify each of these tables. Respond as:
{"classifications":[{"table_number":"1","category":"RESULTS","confidence":0.9,"reason":"..."}]}

TABLES:
%s`

type llmClassifier struct {
	llm       *LLMRunner
	modelName string
	maxTokens int64
	threshold float64
	fallback  *heuristicClassifier
}

type classifyWire struct {
	Classifications []struct {
		TableNumber llmjson.String `json:"table_number"`
		Category    string         `json:"category"`
		Confidence  float64        `json:"confidence"`
		Reason      string         `json:"reason"`
	} `json:"classifications"`
}

func (c *llmClassifier) Classify(ctx context.Context, doc *model.ParsedDocument, tables []model.TableReference) (*model.ClassifyResult, error) {
	if len(tables) == 0 {
		return &model.ClassifyResult{Strategy: "llm"}, nil
	}

	var list strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&list, "Table %s: %s\n", t.Number, t.Caption)
		if len(t.Headers) > 0 {
			fmt.Fprintf(&list, "  headers: %s\n", strings.Join(t.Headers, " | "))
		}
	}

	resp, err := c.llm.Call(ctx, model.StageClassify, anthropicRequest(
		c.modelName, c.maxTokens,
		classifySystemPrompt,
		fmt.Sprintf(classifyUserPrompt, list.String()),
	))
	if err != nil {
		return nil, err
	}

	var wire classifyWire
	if _, err := llmjson.Decode(resp.Text(), &wire); err != nil {
		zap.L().Warn("classification response unparseable, falling back to heuristic", zap.Error(err))
		result, ferr := c.fallback.Classify(ctx, doc, tables)
		if ferr != nil {
			return nil, ferr
		}
		result.Strategy = "llm_fallback_heuristic"
		result.Warnings = append(result.Warnings, "model classification unparseable; heuristic fallback used")
		return result, nil
	}

	byNumber := map[string]model.TableClassification{}
	for _, w := range wire.Classifications {
		category := model.TableCategory(strings.ToUpper(strings.TrimSpace(w.Category)))
		if category != model.CategoryResults {
			category = model.CategoryDescriptive
		}
		// Low-confidence RESULTS verdicts are demoted rather than trusted.
		if category == model.CategoryResults && w.Confidence < c.threshold {
			category = model.CategoryDescriptive
		}
		byNumber[string(w.TableNumber)] = model.TableClassification{
			Category: category,
			Score:    w.Confidence,
			Signals: map[string]model.SignalScore{
				"model": {Score: w.Confidence, Reason: w.Reason},
			},
		}
	}

	result := &model.ClassifyResult{Strategy: "llm"}
	for _, t := range tables {
		cl, ok := byNumber[t.Number]
		if !ok {
			cl = model.TableClassification{
				Category: model.CategoryDescriptive,
				Score:    0.5,
				Signals: map[string]model.SignalScore{
					"model": {Score: 0.5, Reason: "table absent from model response"},
				},
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("table %s not classified by model", t.Number))
		}
		cl.Table = t
		result.Classifications = append(result.Classifications, cl)
	}
	return result, nil
}
