package compare

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTempCSV(t, "Study_ID,Country,Effect_Size\nsmith-2020,Kenya,0.12\ndoe-2019,Peru,0.30\n")

	records, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "smith-2020", records[0].StudyID)
	// Header names lowercase, values keep their case.
	assert.Equal(t, "Kenya", records[0].Fields["country"])
	assert.Equal(t, "0.30", records[1].Fields["effect_size"])
}

func TestLoadCSV_FallsBackToFirstColumn(t *testing.T) {
	path := writeTempCSV(t, "paper,country\np1,Ghana\n,Togo\n")

	records, err := LoadCSV(path)
	require.NoError(t, err)
	// The row with no identifier is dropped.
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].StudyID)
}

func TestLoadCSV_NoData(t *testing.T) {
	path := writeTempCSV(t, "study_id,country\n")
	_, err := LoadCSV(path)
	assert.Error(t, err)
}

func TestLoadXLSX(t *testing.T) {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("coded")
	require.NoError(t, err)

	header := sheet.AddRow()
	header.AddCell().SetString("key")
	header.AddCell().SetString("savings")
	row := sheet.AddRow()
	row.AddCell().SetString("smith-2020")
	row.AddCell().SetString("1")

	path := filepath.Join(t.TempDir(), "coded.xlsx")
	require.NoError(t, wb.Save(path))

	records, err := LoadXLSX(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "smith-2020", records[0].StudyID)
	assert.Equal(t, "1", records[0].Fields["savings"])
}

func TestLoadRecords_ByExtension(t *testing.T) {
	path := writeTempCSV(t, "study_id,country\nx,Kenya\n")
	records, err := LoadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = LoadRecords("data.parquet")
	assert.Error(t, err)
}

func TestLoadMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	require.NoError(t, os.WriteFile(path, []byte("external_id,key\nS1,smith-2020\nS2,doe-2019\n"), 0o644))

	mapping, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"S1": "smith-2020", "S2": "doe-2019"}, mapping)
}

func TestLoadMapping_NoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	require.NoError(t, os.WriteFile(path, []byte("S1,smith-2020\n"), 0o644))

	mapping, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, "smith-2020", mapping["S1"])
}
