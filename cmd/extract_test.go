package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakfield-research/qex-cli/internal/model"
)

func TestListDocumentKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"smith-2020.tei.xml", "doe-2019.tei.xml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.tei.xml"), 0o755))

	keys, err := listDocumentKeys(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"doe-2019", "smith-2020"}, keys)
}

func TestListDocumentKeys_Empty(t *testing.T) {
	_, err := listDocumentKeys(t.TempDir())
	assert.Error(t, err)
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{
		{
			ID:        "run-1",
			Key:       "smith-2020",
			Status:    model.RunStatusComplete,
			Summary:   &model.RunSummary{TablesDiscovered: 4, OutcomesExtracted: 12, EstimatedCostUSD: 0.0315},
			CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		},
		{ID: "run-2", Key: "doe-2019", Status: model.RunStatusFailed},
	})

	out := buf.String()
	assert.Contains(t, out, "smith-2020")
	assert.Contains(t, out, "$0.0315")
	assert.Contains(t, out, "complete")
	// Runs without a summary print placeholders.
	assert.Contains(t, out, "-")
}
