package workers

import (
	"context"
	"fmt"

	"github.com/slok/wdeploy/internal/deployment"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
)

// ServiceConfig is the configuration for the workers service.
type ServiceConfig struct {
	DeploymentService deployment.Service
	Logger            log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.DeploymentService == nil {
		return fmt.Errorf("deployment service is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists the deployable workers.
type Service struct {
	deployer deployment.Service
	logger   log.Logger
}

// NewService creates a new workers service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		deployer: cfg.DeploymentService,
		logger:   cfg.Logger,
	}, nil
}

// Request represents the workers request parameters.
type Request struct {
	Filter model.WorkerFilter
}

// Run lists the deployable workers matching the filter.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Worker, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	workers, err := s.deployer.ListDeployable(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("could not list workers: %w", err)
	}

	s.logger.Debugf("found %d deployable workers", len(workers))
	return workers, nil
}
