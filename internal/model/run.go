package model

import "time"

// RunStatus tracks a pipeline run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names used for persistence and resume.
const (
	StageDiscover    = "discover"
	StageClassify    = "classify"
	StageExtract     = "extract"
	StageVision      = "vision"
	StageAggregate   = "aggregate"
	StagePostprocess = "postprocess"
)

// AllStages lists the pipeline stages in execution order.
var AllStages = []string{
	StageDiscover,
	StageClassify,
	StageExtract,
	StageVision,
	StageAggregate,
	StagePostprocess,
}

// Run is one pipeline execution for a single document.
type Run struct {
	ID        string      `json:"id"`
	Key       string      `json:"key"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary captures the headline numbers of a completed run.
type RunSummary struct {
	TablesDiscovered  int      `json:"tables_discovered"`
	ResultsTables     int      `json:"results_tables"`
	OutcomesExtracted int      `json:"outcomes_extracted"`
	VisionOutcomes    int      `json:"vision_outcomes"`
	OutcomeGroups     int      `json:"outcome_groups"`
	FlatRecords       int      `json:"flat_records"`
	StagesSkipped     []string `json:"stages_skipped,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	EstimatedCostUSD  float64  `json:"estimated_cost_usd"`
	DurationSecs      float64  `json:"duration_secs"`
	Error             string   `json:"error,omitempty"`
}
