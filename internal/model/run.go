package model

import "time"

// RunStatus tracks a pipeline run's lifecycle in the store.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusMerging    RunStatus = "merging"
	RunStatusRendering  RunStatus = "rendering"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run is one pipeline execution over a document.
type Run struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Status    RunStatus `json:"status"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageRecord captures one stage transition for a run.
type StageRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration_ms"`
	StartedAt time.Time `json:"started_at"`
}

// Stage record statuses.
const (
	StageStatusRunning  = "running"
	StageStatusComplete = "complete"
	StageStatusFailed   = "failed"
)
