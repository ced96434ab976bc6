package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/oakfield-research/qex-cli/internal/model"
)

// Plausibility bounds. Values outside these are flagged, never dropped;
// the reviewer decides.
const (
	maxPlausibleEffect = 1000.0
	maxValidPValue     = 1.0
)

// Flatten expands outcome groups into one row per extracted statistic,
// stamped with the document key as study identifier.
func Flatten(key string, groups []model.OutcomeGroup) []model.FlatRecord {
	var records []model.FlatRecord
	for _, g := range groups {
		for _, o := range g.Records {
			records = append(records, model.FlatRecord{
				StudyID:            key,
				Key:                key,
				OutcomeName:        o.OutcomeName,
				OutcomeDescription: o.OutcomeDescription,
				TreatmentArm:       o.TreatmentArm,
				Subgroup:           o.Subgroup,
				TableNumber:        o.TableNumber,
				EffectSize:         o.EffectSize,
				StandardError:      o.StandardError,
				PValue:             o.PValue,
				ConfidenceInterval: o.ConfidenceInterval,
				SampleSize:         o.SampleSize,
				LiteralText:        o.LiteralText,
				TextPosition:       o.TextPosition,
				Method:             string(o.Method),
			})
		}
	}
	return records
}

// Validate audits the flattened records for completeness and plausibility.
func Validate(records []model.FlatRecord) *model.ValidationReport {
	report := &model.ValidationReport{TotalRecords: len(records)}

	for i, r := range records {
		var issues []string
		if r.EffectSize == nil {
			report.MissingEffectSize++
			issues = append(issues, "missing effect_size")
		}
		if r.StandardError == nil {
			report.MissingStandardError++
			issues = append(issues, "missing standard_error")
		}
		if r.PValue == nil {
			report.MissingPValue++
			issues = append(issues, "missing p_value")
		}
		if r.LiteralText == "" {
			report.MissingLiteralText++
			issues = append(issues, "missing literal_text")
		}
		if r.TextPosition == "" {
			report.MissingTextPosition++
			issues = append(issues, "missing text_position")
		}

		if r.EffectSize != nil && math.Abs(*r.EffectSize) > maxPlausibleEffect {
			report.QualityWarnings = append(report.QualityWarnings, fmt.Sprintf(
				"record %d (%s): implausible effect size %g", i, r.OutcomeName, *r.EffectSize))
		}
		if r.PValue != nil && *r.PValue > maxValidPValue {
			report.QualityWarnings = append(report.QualityWarnings, fmt.Sprintf(
				"record %d (%s): invalid p-value %g", i, r.OutcomeName, *r.PValue))
		}

		if len(issues) > 0 {
			report.Issues = append(report.Issues, model.RecordIssue{Index: i, Issues: issues})
		}
	}

	if len(records) > 0 {
		// Completeness over the three core statistical fields.
		filled := 3*len(records) - report.MissingEffectSize - report.MissingStandardError - report.MissingPValue
		report.CompletenessRate = float64(filled) / float64(3*len(records))
	}

	return report
}

// Postprocess flattens, validates, and returns the export for one document.
func Postprocess(key string, agg *model.AggregateResult) *model.PostprocessResult {
	records := Flatten(key, agg.Groups)
	return &model.PostprocessResult{
		Records: records,
		Report:  Validate(records),
	}
}

// WriteOutputs writes the per-document export files: the flattened CSV, the
// full JSON, and a human-readable summary.
func WriteOutputs(outputDir, key string, post *model.PostprocessResult) error {
	dir := filepath.Join(outputDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create output dir %s", dir)
	}

	csvData, err := csvutil.Marshal(post.Records)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal csv")
	}
	if err := os.WriteFile(filepath.Join(dir, key+"_final.csv"), csvData, 0o644); err != nil {
		return eris.Wrap(err, "pipeline: write final csv")
	}

	jsonData, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal json")
	}
	if err := os.WriteFile(filepath.Join(dir, key+"_final.json"), jsonData, 0o644); err != nil {
		return eris.Wrap(err, "pipeline: write final json")
	}

	if err := os.WriteFile(filepath.Join(dir, key+"_summary.txt"), []byte(summaryText(key, post)), 0o644); err != nil {
		return eris.Wrap(err, "pipeline: write summary")
	}
	return nil
}

func summaryText(key string, post *model.PostprocessResult) string {
	r := post.Report
	var b strings.Builder

	fmt.Fprintf(&b, "Extraction summary for %s\n", key)
	fmt.Fprintf(&b, "Records: %d\n", r.TotalRecords)
	fmt.Fprintf(&b, "Completeness: %.1f%%\n\n", r.CompletenessRate*100)

	fmt.Fprintf(&b, "Field coverage:\n")
	fmt.Fprintf(&b, "  effect_size:    %s\n", coverage(r.TotalRecords, r.MissingEffectSize))
	fmt.Fprintf(&b, "  standard_error: %s\n", coverage(r.TotalRecords, r.MissingStandardError))
	fmt.Fprintf(&b, "  p_value:        %s\n", coverage(r.TotalRecords, r.MissingPValue))
	fmt.Fprintf(&b, "  literal_text:   %s\n", coverage(r.TotalRecords, r.MissingLiteralText))
	fmt.Fprintf(&b, "  text_position:  %s\n", coverage(r.TotalRecords, r.MissingTextPosition))

	if len(r.QualityWarnings) > 0 {
		fmt.Fprintf(&b, "\nQuality warnings:\n")
		for _, w := range r.QualityWarnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}

func coverage(total, missing int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%% (%d/%d)", float64(total-missing)/float64(total)*100, total-missing, total)
}
