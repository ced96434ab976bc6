package model

// ParseStatus records how the JSON payload of a model response was recovered.
type ParseStatus string

const (
	ParseOK             ParseStatus = "ok"
	ParseRepaired       ParseStatus = "repaired"
	ParseMalformedEmpty ParseStatus = "malformed_empty"
)

// TableReference identifies a table mentioned in a document. TableType
// distinguishes formatted grids ("structured") from values embedded in
// running text ("paragraph"). Confidence is the model's certainty in this
// entry; zero means none was reported.
type TableReference struct {
	Number     string     `json:"table_number"`
	Caption    string     `json:"caption"`
	Location   string     `json:"location,omitempty"`
	TableType  string     `json:"table_type,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Headers    []string   `json:"headers,omitempty"`
	SampleRows [][]string `json:"sample_rows,omitempty"`
}

// DiscoveryResult is the output of the table discovery stage.
type DiscoveryResult struct {
	Tables     []TableReference `json:"tables"`
	Confidence float64          `json:"confidence"`
	Warnings   []string         `json:"warnings,omitempty"`
	Parse      ParseStatus      `json:"parse_status"`

	// RawResponse keeps the unparsed model output for debugging. It is
	// persisted alongside the stage result but excluded from summaries.
	RawResponse string `json:"raw_response,omitempty"`
}

// TableCategory is the classifier's verdict for a table. The verdict is
// binary: a table either carries extractable results or it doesn't. Figure
// entries are dropped before classification rather than given a category.
type TableCategory string

const (
	CategoryResults     TableCategory = "RESULTS"
	CategoryDescriptive TableCategory = "DESCRIPTIVE"
)

// SignalScore records one heuristic signal's contribution to a classification.
type SignalScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// TableClassification pairs a table with its category and scoring detail.
type TableClassification struct {
	Table    TableReference         `json:"table"`
	Category TableCategory          `json:"category"`
	Score    float64                `json:"score"`
	Signals  map[string]SignalScore `json:"signals,omitempty"`
}

// ClassifyResult is the output of the table classification stage.
type ClassifyResult struct {
	Classifications []TableClassification `json:"classifications"`
	Dropped         []TableReference      `json:"dropped,omitempty"`
	Strategy        string                `json:"strategy"`
	Warnings        []string              `json:"warnings,omitempty"`
}

// ResultsTables returns the tables classified RESULTS, in input order.
func (r *ClassifyResult) ResultsTables() []TableReference {
	var out []TableReference
	for _, c := range r.Classifications {
		if c.Category == CategoryResults {
			out = append(out, c.Table)
		}
	}
	return out
}
