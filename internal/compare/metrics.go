package compare

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FieldMetrics summarizes agreement for one field across all studies.
type FieldMetrics struct {
	Field     string  `json:"field"`
	Compared  int     `json:"compared"`
	Matches   int     `json:"matches"`
	Agreement float64 `json:"agreement"`
}

// Metrics summarizes a comparison run.
type Metrics struct {
	TotalComparisons int            `json:"total_comparisons"`
	TotalMatches     int            `json:"total_matches"`
	OverallAgreement float64        `json:"overall_agreement"`
	Fields           []FieldMetrics `json:"fields"`

	// Distribution of per-field agreement rates.
	MeanFieldAgreement   float64 `json:"mean_field_agreement"`
	StdDevFieldAgreement float64 `json:"stddev_field_agreement"`
	MinFieldAgreement    float64 `json:"min_field_agreement"`

	ReasonCounts map[string]int `json:"reason_counts"`
}

// ComputeMetrics aggregates field comparisons into agreement rates. Fields
// sort by name so reports are stable.
func ComputeMetrics(comparisons []FieldComparison) *Metrics {
	m := &Metrics{ReasonCounts: map[string]int{}}

	type tally struct{ compared, matches int }
	byField := map[string]*tally{}
	var names []string

	for _, c := range comparisons {
		m.TotalComparisons++
		m.ReasonCounts[c.Reason]++

		t, ok := byField[c.Field]
		if !ok {
			t = &tally{}
			byField[c.Field] = t
			names = append(names, c.Field)
		}
		t.compared++
		if c.Match {
			t.matches++
			m.TotalMatches++
		}
	}

	if m.TotalComparisons > 0 {
		m.OverallAgreement = float64(m.TotalMatches) / float64(m.TotalComparisons)
	}

	sort.Strings(names)
	var rates []float64
	for _, name := range names {
		t := byField[name]
		fm := FieldMetrics{
			Field:     name,
			Compared:  t.compared,
			Matches:   t.matches,
			Agreement: float64(t.matches) / float64(t.compared),
		}
		m.Fields = append(m.Fields, fm)
		rates = append(rates, fm.Agreement)
	}

	if len(rates) > 0 {
		m.MeanFieldAgreement = stat.Mean(rates, nil)
		m.MinFieldAgreement = rates[0]
		for _, r := range rates[1:] {
			if r < m.MinFieldAgreement {
				m.MinFieldAgreement = r
			}
		}
	}
	if len(rates) > 1 {
		m.StdDevFieldAgreement = stat.StdDev(rates, nil)
	}

	return m
}
