// Package store persists pipeline runs, their stage transitions, and the
// node quarantine. Documents themselves are never stored; only run
// bookkeeping lives here.
package store

import (
	"context"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
)

// Store is the persistence boundary shared by the SQLite and Postgres
// implementations.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateRun(ctx context.Context, document string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error
	CompleteRun(ctx context.Context, id string, status model.RunStatus, result string) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	CreateStage(ctx context.Context, runID, name string) (*model.StageRecord, error)
	CompleteStage(ctx context.Context, stageID, status string, durationMs int64, errMsg string) error
	ListStages(ctx context.Context, runID string) ([]model.StageRecord, error)

	EnqueueQuarantine(ctx context.Context, entry resilience.QuarantinedNode) error
	ListQuarantine(ctx context.Context, filter resilience.QuarantineFilter) ([]resilience.QuarantinedNode, error)
	DeleteQuarantine(ctx context.Context, id string) error
}
