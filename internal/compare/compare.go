package compare

import (
	"math"
	"strconv"
	"strings"
)

// FieldType selects the comparison rule for a field.
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldCategorical FieldType = "categorical"
	FieldComponent   FieldType = "component"
	FieldText        FieldType = "text"
)

// FieldSpec names a compared field and its type.
type FieldSpec struct {
	Name string
	Type FieldType
}

// DefaultFields lists the coded fields compared out of the box: the program
// component indicators plus bibliographic and headline-result fields.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{Name: "title", Type: FieldText},
		{Name: "authors", Type: FieldText},
		{Name: "publication_year", Type: FieldNumeric},
		{Name: "country", Type: FieldCategorical},
		{Name: "study_design", Type: FieldCategorical},
		{Name: "sample_size", Type: FieldNumeric},
		{Name: "effect_size", Type: FieldNumeric},
		{Name: "standard_error", Type: FieldNumeric},
		{Name: "p_value", Type: FieldNumeric},
		{Name: "consumption_support", Type: FieldComponent},
		{Name: "healthcare", Type: FieldComponent},
		{Name: "assets", Type: FieldComponent},
		{Name: "skills_training", Type: FieldComponent},
		{Name: "savings", Type: FieldComponent},
		{Name: "coaching", Type: FieldComponent},
		{Name: "social_empowerment", Type: FieldComponent},
	}
}

// Match reasons. Every comparison carries exactly one.
const (
	ReasonExactMatch         = "exact_match"
	ReasonWithinTolerance    = "within_tolerance"
	ReasonValueMismatch      = "value_mismatch"
	ReasonSubstringMatch     = "substring_match"
	ReasonBothUnclear        = "both_unclear"
	ReasonComponentAmbiguous = "component_ambiguous"
	ReasonWordOverlap        = "word_overlap"
	ReasonLLMMissing         = "llm_missing"
	ReasonHumanMissing       = "human_missing"
	ReasonBothNull           = "both_null"
)

// FieldComparison is one field of one study compared across datasets.
type FieldComparison struct {
	StudyID    string `csv:"study_id" json:"study_id"`
	Field      string `csv:"field" json:"field"`
	LLMValue   string `csv:"llm_value" json:"llm_value"`
	HumanValue string `csv:"human_value" json:"human_value"`
	Match      bool   `csv:"match" json:"match"`
	Reason     string `csv:"reason" json:"reason"`
}

// Result is the full output of a comparison run.
type Result struct {
	Comparisons []FieldComparison `json:"comparisons"`
	Metrics     *Metrics          `json:"metrics"`

	// UnmatchedKeys lists machine-side keys with no human counterpart.
	UnmatchedKeys []string `json:"unmatched_keys,omitempty"`
}

// Engine compares study records field by field.
type Engine struct {
	fields    []FieldSpec
	tolerance float64
}

// NewEngine builds an Engine. tolerance is the relative numeric tolerance,
// e.g. 0.01 for one percent.
func NewEngine(fields []FieldSpec, tolerance float64) *Engine {
	if len(fields) == 0 {
		fields = DefaultFields()
	}
	return &Engine{fields: fields, tolerance: tolerance}
}

// Compare matches machine records to human records through the identifier
// mapping and compares every configured field of every matched pair. mapping
// may be nil when both datasets share identifiers.
func (e *Engine) Compare(llm, human []StudyRecord, mapping map[string]string) *Result {
	byKey := map[string]StudyRecord{}
	for _, r := range llm {
		byKey[r.StudyID] = r
	}

	result := &Result{}
	matched := map[string]bool{}

	for _, h := range human {
		key := h.StudyID
		if mapping != nil {
			mapped, ok := mapping[h.StudyID]
			if !ok {
				continue
			}
			key = mapped
		}
		l, ok := byKey[key]
		if !ok {
			continue
		}
		matched[key] = true

		for _, spec := range e.fields {
			llmVal := l.Fields[spec.Name]
			humanVal := h.Fields[spec.Name]
			match, reason := e.compareField(spec, llmVal, humanVal)
			result.Comparisons = append(result.Comparisons, FieldComparison{
				StudyID:    h.StudyID,
				Field:      spec.Name,
				LLMValue:   llmVal,
				HumanValue: humanVal,
				Match:      match,
				Reason:     reason,
			})
		}
	}

	for _, r := range llm {
		if !matched[r.StudyID] {
			result.UnmatchedKeys = append(result.UnmatchedKeys, r.StudyID)
		}
	}

	result.Metrics = ComputeMetrics(result.Comparisons)
	return result
}

func (e *Engine) compareField(spec FieldSpec, llmVal, humanVal string) (bool, string) {
	llmNull := isNull(llmVal)
	humanNull := isNull(humanVal)

	// Component states fold "not mentioned" into their own scale, so null
	// handling happens inside the component rule.
	if spec.Type != FieldComponent {
		switch {
		case llmNull && humanNull:
			return true, ReasonBothNull
		case llmNull:
			return false, ReasonLLMMissing
		case humanNull:
			return false, ReasonHumanMissing
		}
	}

	switch spec.Type {
	case FieldNumeric:
		return e.compareNumeric(llmVal, humanVal)
	case FieldComponent:
		return compareComponent(llmVal, humanVal)
	case FieldText:
		return compareText(llmVal, humanVal)
	default:
		return compareCategorical(llmVal, humanVal)
	}
}

// compareNumeric applies a tolerance relative to the human value. A zero
// human value gets no relative band, so it only matches exactly.
func (e *Engine) compareNumeric(llmVal, humanVal string) (bool, string) {
	a, aok := parseNumber(llmVal)
	b, bok := parseNumber(humanVal)
	if !aok || !bok {
		// Unparseable numbers fall back to string comparison.
		return compareCategorical(llmVal, humanVal)
	}

	if a == b {
		return true, ReasonExactMatch
	}
	if b == 0 {
		return false, ReasonValueMismatch
	}
	if math.Abs(a-b) <= e.tolerance*math.Abs(b) {
		return true, ReasonWithinTolerance
	}
	return false, ReasonValueMismatch
}

// unclearCodes are the spellings both datasets use when a coder could not
// determine a value. Any pair drawn from this set counts as agreement.
var unclearCodes = map[string]bool{
	"unclear":      true,
	"not reported": true,
	"nr":           true,
	"n/a":          true,
	"na":           true,
	"?":            true,
	"unknown":      true,
}

func compareCategorical(llmVal, humanVal string) (bool, string) {
	a := strings.ToLower(strings.TrimSpace(llmVal))
	b := strings.ToLower(strings.TrimSpace(humanVal))

	if unclearCodes[a] && unclearCodes[b] {
		return true, ReasonBothUnclear
	}
	if a == b {
		return true, ReasonExactMatch
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true, ReasonSubstringMatch
	}
	return false, ReasonValueMismatch
}

// Component states.
const (
	componentYes          = "yes"
	componentNo           = "no"
	componentUnclear      = "unclear"
	componentNotMentioned = "not_mentioned"
)

// normalizeComponent folds coding conventions from both datasets into the
// four canonical states.
func normalizeComponent(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "1.0", "yes", "y", "true":
		return componentYes
	case "0", "0.0", "no", "n", "false":
		return componentNo
	case "unclear", "not reported", "nr", "n/a", "na", "?", "unknown":
		return componentUnclear
	default:
		return componentNotMentioned
	}
}

// compareComponent matches normalized states. Unclear against not-mentioned
// is its own non-match reason: the two codings disagree about whether the
// paper addresses the component at all, and that ambiguity is worth
// surfacing separately from a plain mismatch.
func compareComponent(llmVal, humanVal string) (bool, string) {
	a := normalizeComponent(llmVal)
	b := normalizeComponent(humanVal)

	if a == b {
		if a == componentUnclear {
			return true, ReasonBothUnclear
		}
		return true, ReasonExactMatch
	}
	if (a == componentUnclear && b == componentNotMentioned) ||
		(a == componentNotMentioned && b == componentUnclear) {
		return false, ReasonComponentAmbiguous
	}
	return false, ReasonValueMismatch
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true,
	"on": true, "for": true, "to": true, "with": true, "by": true, "from": true,
}

// compareText accepts equality, containment in either direction, or majority
// word overlap after stopword filtering, in that order.
func compareText(llmVal, humanVal string) (bool, string) {
	a := strings.ToLower(strings.TrimSpace(llmVal))
	b := strings.ToLower(strings.TrimSpace(humanVal))
	if a == b {
		return true, ReasonExactMatch
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true, ReasonSubstringMatch
	}

	wa := contentWords(a)
	wb := contentWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false, ReasonValueMismatch
	}

	intersection := 0
	union := len(wb)
	for w := range wa {
		if wb[w] {
			intersection++
		} else {
			union++
		}
	}
	if float64(intersection)/float64(union) > 0.5 {
		return true, ReasonWordOverlap
	}
	return false, ReasonValueMismatch
}

func contentWords(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

// isNull recognizes genuinely empty cells. Coder shorthand like "nr" or
// "n/a" is not null here: it carries meaning for the unclear-code rule.
func isNull(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "none", "null":
		return true
	}
	return false
}

// parseNumber parses a numeric string, tolerating thousands separators and
// percent signs.
func parseNumber(v string) (float64, bool) {
	s := strings.TrimSpace(v)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
