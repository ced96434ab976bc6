package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakfield-research/qex-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "STUDY001")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "STUDY001", run.Key)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	summary := &model.RunSummary{
		TablesDiscovered:  6,
		ResultsTables:     3,
		OutcomesExtracted: 41,
		Warnings:          []string{"table numbering gap between 2 and 4"},
	}
	require.NoError(t, st.UpdateRunSummary(ctx, run.ID, summary))
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 41, got.Summary.OutcomesExtracted)
	assert.Len(t, got.Summary.Warnings, 1)
}

func TestSQLite_UpdateMissingRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpdateRunStatus(ctx, "no-such-run", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "STUDY001")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "STUDY002")
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, "STUDY001", complete[0].Key)

	byKey, err := st.ListRuns(ctx, RunFilter{Key: "STUDY002"})
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, model.RunStatusQueued, byKey[0].Status)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_StageResults_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	payload := []byte(`{"tables":[{"table_number":"1"}],"confidence":0.9}`)
	require.NoError(t, st.SaveStageResult(ctx, "STUDY001", model.StageDiscover, payload))

	got, err := st.GetStageResult(ctx, "STUDY001", model.StageDiscover)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))

	// Upsert replaces the previous payload.
	updated := []byte(`{"tables":[],"confidence":0.1}`)
	require.NoError(t, st.SaveStageResult(ctx, "STUDY001", model.StageDiscover, updated))

	got, err = st.GetStageResult(ctx, "STUDY001", model.StageDiscover)
	require.NoError(t, err)
	assert.JSONEq(t, string(updated), string(got))
}

func TestSQLite_StageResults_MissingIsNil(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetStageResult(context.Background(), "STUDY001", model.StageExtract)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_DeleteStageResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveStageResult(ctx, "STUDY001", model.StageDiscover, []byte(`{}`)))
	require.NoError(t, st.SaveStageResult(ctx, "STUDY001", model.StageClassify, []byte(`{}`)))
	require.NoError(t, st.SaveStageResult(ctx, "STUDY002", model.StageDiscover, []byte(`{}`)))

	require.NoError(t, st.DeleteStageResults(ctx, "STUDY001"))

	got, err := st.GetStageResult(ctx, "STUDY001", model.StageDiscover)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Other documents untouched.
	got, err = st.GetStageResult(ctx, "STUDY002", model.StageDiscover)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
