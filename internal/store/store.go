package store

import (
	"context"

	"github.com/oakfield-research/qex-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Key    string          `json:"key,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
// Stage results are keyed by (document key, stage) with latest-wins upsert
// semantics, which is what makes per-stage resume possible.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, key string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunSummary(ctx context.Context, runID string, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stage results
	SaveStageResult(ctx context.Context, key, stage string, payload []byte) error
	GetStageResult(ctx context.Context, key, stage string) ([]byte, error)
	DeleteStageResults(ctx context.Context, key string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
