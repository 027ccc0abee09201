package runlist

import (
	"context"
	"fmt"

	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/storage"
)

// ServiceConfig is the configuration for the run list service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists the deploy run history.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new run list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the run list request parameters.
type Request struct {
	// Limit caps the number of runs, zero means all.
	Limit int
	// OnlyFailed only returns runs with failures or a listing error.
	OnlyFailed bool
}

// Run lists the runs, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.DeployRun, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	s.logger.Debugf("listing runs (limit: %d, only failed: %t)", req.Limit, req.OnlyFailed)

	opts := storage.ListRunsOptions{Limit: req.Limit}
	if req.OnlyFailed {
		// Filtering happens after the query.
		opts.Limit = 0
	}

	runs, err := s.repo.ListRuns(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}

	if req.OnlyFailed {
		filtered := make([]model.DeployRun, 0, len(runs))
		for _, r := range runs {
			if len(r.NotOK()) > 0 || r.LastError != "" {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
		if req.Limit > 0 && len(runs) > req.Limit {
			runs = runs[:req.Limit]
		}
	}

	s.logger.Debugf("found %d runs", len(runs))
	return runs, nil
}
