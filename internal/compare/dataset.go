// Package compare evaluates machine-extracted study records against
// human-coded ground truth, field by field, and reports agreement.
package compare

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// StudyRecord is one study's coded fields, keyed by column name. Both sides
// of a comparison load into this shape regardless of source format, which is
// what lets the engine stay format-agnostic.
type StudyRecord struct {
	StudyID string
	Fields  map[string]string
}

// LoadRecords reads study records from a CSV or XLSX file, chosen by
// extension.
func LoadRecords(path string) ([]StudyRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("compare: unsupported file type %s", path)
	}
}

// LoadCSV reads records from a CSV file. The header row names the fields;
// the study identifier comes from a "study_id" or "key" column, falling back
// to the first column.
func LoadCSV(path string) ([]StudyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "compare: read %s", path)
	}
	if len(rows) < 2 {
		return nil, eris.Errorf("compare: %s has no data rows", path)
	}

	return buildRecords(rows[0], rows[1:])
}

// LoadXLSX reads records from the first sheet of an XLSX workbook, with the
// same header conventions as LoadCSV.
func LoadXLSX(path string) ([]StudyRecord, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: open %s", path)
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.Errorf("compare: %s has no sheets", path)
	}

	sheet := wb.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.Errorf("compare: %s has no data rows", path)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			cells = append(cells, c.String())
		}
		rows = append(rows, cells)
	}

	return buildRecords(rows[0], rows[1:])
}

func buildRecords(header []string, rows [][]string) ([]StudyRecord, error) {
	idCol := 0
	cols := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.ToLower(h))
		cols[i] = name
		if name == "study_id" || name == "key" {
			idCol = i
		}
	}

	var records []StudyRecord
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		rec := StudyRecord{Fields: map[string]string{}}
		for i, val := range row {
			if i >= len(cols) {
				break
			}
			rec.Fields[cols[i]] = strings.TrimSpace(val)
		}
		if idCol < len(row) {
			rec.StudyID = strings.TrimSpace(row[idCol])
		}
		if rec.StudyID == "" {
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, eris.New("compare: no records with a study identifier")
	}
	return records, nil
}

// LoadMapping reads an identifier mapping CSV whose first column is the
// human dataset's study identifier and second column the document key.
func LoadMapping(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: open mapping %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "compare: read mapping %s", path)
	}

	mapping := map[string]string{}
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		// Skip a header row if present.
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[1]), "key") {
			continue
		}
		mapping[strings.TrimSpace(row[0])] = strings.TrimSpace(row[1])
	}
	if len(mapping) == 0 {
		return nil, eris.Errorf("compare: mapping %s is empty", path)
	}
	return mapping, nil
}
