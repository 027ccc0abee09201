package runstatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/storage"
)

// LatestRunID selects the most recent run.
const LatestRunID = "latest"

// ServiceConfig is the configuration for the run status service.
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

// Service retrieves a deploy run with all its outcomes.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new run status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the run status request parameters.
type Request struct {
	// ID is the run ULID or LatestRunID.
	ID string
}

// Run retrieves a run by ID.
func (s *Service) Run(ctx context.Context, req Request) (*model.DeployRun, error) {
	if req.ID == "" || req.ID == LatestRunID {
		return s.latest(ctx)
	}

	if _, err := ulid.ParseStrict(req.ID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", req.ID, model.ErrNotValid)
	}

	s.logger.Debugf("getting run: %s", req.ID)

	run, err := s.repo.GetRun(ctx, req.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("run not found: %s: %w", req.ID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get run: %w", err)
	}

	return run, nil
}

func (s *Service) latest(ctx context.Context) (*model.DeployRun, error) {
	runs, err := s.repo.ListRuns(ctx, storage.ListRunsOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("could not get latest run: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs: %w", model.ErrNotFound)
	}

	return &runs[0], nil
}
