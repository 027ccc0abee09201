package storage

import (
	"context"

	"github.com/slok/wdeploy/internal/model"
)

// RunRepository is the interface for deploy run history persistence.
type RunRepository interface {
	// SaveRun stores a finished run, replacing any previous version with the same ID.
	SaveRun(ctx context.Context, r model.DeployRun) error
	GetRun(ctx context.Context, id string) (*model.DeployRun, error)
	// ListRuns returns the runs, newest first.
	ListRuns(ctx context.Context, opts ListRunsOptions) ([]model.DeployRun, error)
}

// ListRunsOptions are the options for listing runs.
type ListRunsOptions struct {
	// Limit caps the number of returned runs, zero means no limit.
	Limit int
}
