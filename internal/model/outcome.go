package model

// ExtractionMethod records which pathway produced an outcome.
type ExtractionMethod string

const (
	MethodTEIText   ExtractionMethod = "tei_text"
	MethodPDFVision ExtractionMethod = "pdf_vision"
)

// OutcomeRecord is one extracted statistic. Numeric fields are pointers so
// that "not reported" stays distinct from zero.
type OutcomeRecord struct {
	OutcomeName        string           `json:"outcome_name"`
	OutcomeDescription string           `json:"outcome_description,omitempty"`
	TreatmentArm       string           `json:"treatment_arm,omitempty"`
	Subgroup           string           `json:"subgroup,omitempty"`
	TableNumber        string           `json:"table_number"`
	EffectSize         *float64         `json:"effect_size,omitempty"`
	StandardError      *float64         `json:"standard_error,omitempty"`
	PValue             *float64         `json:"p_value,omitempty"`
	ConfidenceInterval string           `json:"confidence_interval,omitempty"`
	SampleSize         *int             `json:"sample_size,omitempty"`
	LiteralText        string           `json:"literal_text"`
	TextPosition       string           `json:"text_position,omitempty"`
	Method             ExtractionMethod `json:"extraction_method"`
}

// TableStatus summarizes extraction success for one table.
type TableStatus struct {
	TableNumber   string           `json:"table_number"`
	Found         bool             `json:"found"`
	OutcomesFound int              `json:"outcomes_found"`
	Method        ExtractionMethod `json:"method,omitempty"`
}

// ExtractionResult is the output of the statistical extraction stage (and of
// the vision fallback, which produces the same shape).
type ExtractionResult struct {
	Outcomes []OutcomeRecord `json:"outcomes"`
	Statuses []TableStatus   `json:"table_statuses"`
	Warnings []string        `json:"warnings,omitempty"`
}

// StatusFor returns the status entry for a table number, if present.
func (r *ExtractionResult) StatusFor(tableNumber string) (TableStatus, bool) {
	for _, s := range r.Statuses {
		if s.TableNumber == tableNumber {
			return s, true
		}
	}
	return TableStatus{}, false
}

// OutcomeGroup collects all records that share an outcome name.
type OutcomeGroup struct {
	Name           string          `json:"outcome_name"`
	Description    string          `json:"outcome_description,omitempty"`
	VariationCount int             `json:"variation_count"`
	Tables         []string        `json:"tables"`
	TreatmentArms  []string        `json:"treatment_arms,omitempty"`
	Subgroups      []string        `json:"subgroups,omitempty"`
	Records        []OutcomeRecord `json:"records"`
}

// AggregateResult is the output of the outcome aggregation stage.
type AggregateResult struct {
	Groups []OutcomeGroup `json:"groups"`
}

// FlatRecord is one row of the flattened per-statistic export.
type FlatRecord struct {
	StudyID            string   `csv:"study_id" json:"study_id"`
	Key                string   `csv:"key" json:"key"`
	OutcomeName        string   `csv:"outcome_name" json:"outcome_name"`
	OutcomeDescription string   `csv:"outcome_description" json:"outcome_description,omitempty"`
	TreatmentArm       string   `csv:"treatment_arm" json:"treatment_arm,omitempty"`
	Subgroup           string   `csv:"subgroup" json:"subgroup,omitempty"`
	TableNumber        string   `csv:"table_number" json:"table_number"`
	EffectSize         *float64 `csv:"effect_size" json:"effect_size,omitempty"`
	StandardError      *float64 `csv:"standard_error" json:"standard_error,omitempty"`
	PValue             *float64 `csv:"p_value" json:"p_value,omitempty"`
	ConfidenceInterval string   `csv:"confidence_interval" json:"confidence_interval,omitempty"`
	SampleSize         *int     `csv:"sample_size" json:"sample_size,omitempty"`
	LiteralText        string   `csv:"literal_text" json:"literal_text"`
	TextPosition       string   `csv:"text_position" json:"text_position,omitempty"`
	Method             string   `csv:"extraction_method" json:"extraction_method"`
}

// RecordIssue lists validation problems found on one flattened record.
type RecordIssue struct {
	Index  int      `json:"index"`
	Issues []string `json:"issues"`
}

// ValidationReport summarizes completeness and plausibility of the export.
type ValidationReport struct {
	TotalRecords         int           `json:"total_records"`
	MissingEffectSize    int           `json:"missing_effect_size"`
	MissingStandardError int           `json:"missing_standard_error"`
	MissingPValue        int           `json:"missing_p_value"`
	MissingLiteralText   int           `json:"missing_literal_text"`
	MissingTextPosition  int           `json:"missing_text_position"`
	CompletenessRate     float64       `json:"completeness_rate"`
	Issues               []RecordIssue `json:"issues,omitempty"`
	QualityWarnings      []string      `json:"quality_warnings,omitempty"`
}

// PostprocessResult is the output of the post-processing stage.
type PostprocessResult struct {
	Records []FlatRecord      `json:"records"`
	Report  *ValidationReport `json:"report"`
}
