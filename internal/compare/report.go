package compare

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// flagThreshold marks fields whose agreement a reviewer should look at.
const flagThreshold = 0.70

// WriteReports writes the comparison outputs: the per-field detail CSV, the
// metrics JSON, and a readable text report.
func WriteReports(outDir string, result *Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return eris.Wrapf(err, "compare: create output dir %s", outDir)
	}

	csvData, err := csvutil.Marshal(result.Comparisons)
	if err != nil {
		return eris.Wrap(err, "compare: marshal detail csv")
	}
	if err := os.WriteFile(filepath.Join(outDir, "comparison_detail.csv"), csvData, 0o644); err != nil {
		return eris.Wrap(err, "compare: write detail csv")
	}

	jsonData, err := json.MarshalIndent(result.Metrics, "", "  ")
	if err != nil {
		return eris.Wrap(err, "compare: marshal metrics")
	}
	if err := os.WriteFile(filepath.Join(outDir, "metrics.json"), jsonData, 0o644); err != nil {
		return eris.Wrap(err, "compare: write metrics")
	}

	if err := os.WriteFile(filepath.Join(outDir, "report.txt"), []byte(ReportText(result)), 0o644); err != nil {
		return eris.Wrap(err, "compare: write report")
	}
	return nil
}

// ReportText renders the human-readable agreement report.
func ReportText(result *Result) string {
	m := result.Metrics
	var b strings.Builder

	fmt.Fprintf(&b, "Comparison report\n")
	fmt.Fprintf(&b, "=================\n\n")
	fmt.Fprintf(&b, "Comparisons: %d\n", m.TotalComparisons)
	fmt.Fprintf(&b, "Overall agreement: %.1f%%\n", m.OverallAgreement*100)
	fmt.Fprintf(&b, "Per-field agreement: mean %.1f%%, stddev %.1f%%, min %.1f%%\n\n",
		m.MeanFieldAgreement*100, m.StdDevFieldAgreement*100, m.MinFieldAgreement*100)

	fmt.Fprintf(&b, "Field agreement:\n")
	for _, f := range m.Fields {
		flag := ""
		if f.Agreement < flagThreshold {
			flag = "  <- review"
		}
		fmt.Fprintf(&b, "  %-24s %5.1f%% (%d/%d)%s\n", f.Field, f.Agreement*100, f.Matches, f.Compared, flag)
	}

	var flagged []string
	for _, f := range m.Fields {
		if f.Agreement < flagThreshold {
			flagged = append(flagged, f.Field)
		}
	}
	if len(flagged) > 0 {
		fmt.Fprintf(&b, "\nFields below %.0f%% agreement: %s\n", flagThreshold*100, strings.Join(flagged, ", "))
	}

	if len(result.UnmatchedKeys) > 0 {
		fmt.Fprintf(&b, "\nMachine records with no human counterpart: %s\n", strings.Join(result.UnmatchedKeys, ", "))
	}
	return b.String()
}
