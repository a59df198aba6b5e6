// Package store persists pipeline runs, their stages and the append-only
// results log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datagenie/internal/model"
)

// ErrNotFound is wrapped by lookups and updates that match no record.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Question string          `json:"question,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// ResultFilter specifies criteria for listing results log entries.
type ResultFilter struct {
	RunID    string `json:"run_id,omitempty"`
	Question string `json:"question,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analytics pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, question string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error
	ListStages(ctx context.Context, runID string) ([]model.RunStage, error)

	// Results log (append-only)
	AppendResult(ctx context.Context, rec model.ResultRecord) (*model.ResultRecord, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.ResultRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
