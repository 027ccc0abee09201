package lib

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/slok/wdeploy/internal/app/deploy"
	"github.com/slok/wdeploy/internal/app/runlist"
	"github.com/slok/wdeploy/internal/app/runstatus"
	"github.com/slok/wdeploy/internal/app/workers"
	"github.com/slok/wdeploy/internal/conventions"
	"github.com/slok/wdeploy/internal/deployment"
	"github.com/slok/wdeploy/internal/deployment/fake"
	"github.com/slok/wdeploy/internal/deployment/remote"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/storage"
	"github.com/slok/wdeploy/internal/storage/memory"
	"github.com/slok/wdeploy/internal/storage/sqlite"
)

// BatchSize is the max number of workers deployed concurrently.
const BatchSize = deploy.BatchSize

// Config configures the SDK client.
//
// One backend is required: APIURL for the dashboard API or FakeWorkers for a
// simulated fleet.
type Config struct {
	// APIURL is the dashboard API base URL.
	APIURL string
	// APIToken is sent as a bearer token when set.
	APIToken string
	// APITimeout is the per request timeout.
	// Default: 30s.
	APITimeout time.Duration

	// FakeWorkers replaces the dashboard API with a simulated fleet.
	FakeWorkers []FakeWorker

	// DBPath is the SQLite run history database path.
	// Default: ~/.wdeploy/wdeploy.db.
	DBPath string
	// InMemoryHistory keeps the run history in memory instead of SQLite.
	InMemoryHistory bool

	// Logger receives structured log output from the SDK.
	// Default: noop (silent).
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.APIURL == "" && c.FakeWorkers == nil {
		return fmt.Errorf("api url or fake workers are required: %w", ErrNotValid)
	}
	if c.APIURL != "" && c.FakeWorkers != nil {
		return fmt.Errorf("api url and fake workers can't be used at the same time: %w", ErrNotValid)
	}

	if c.DBPath == "" && !c.InMemoryHistory {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DBPath = conventions.DBPath(home)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	coordinator *deploy.Coordinator
	workers     *workers.Service
	runList     *runlist.Service
	runStatus   *runstatus.Service
	closeFn     func() error
}

// New creates a new SDK client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	deployer, err := newDeploymentService(cfg)
	if err != nil {
		return nil, mapError(err)
	}

	var repo storage.RunRepository
	closeFn := func() error { return nil }
	if cfg.InMemoryHistory {
		repo, err = memory.NewRepository(memory.RepositoryConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
	} else {
		sqliteRepo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: cfg.DBPath,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		repo = sqliteRepo
		closeFn = sqliteRepo.Close
	}

	coord, err := deploy.NewCoordinator(deploy.CoordinatorConfig{
		DeploymentService: deployer,
		Repository:        repo,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create coordinator: %w", err)
	}
	workersSvc, err := workers.NewService(workers.ServiceConfig{DeploymentService: deployer, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create workers service: %w", err)
	}
	runListSvc, err := runlist.NewService(runlist.ServiceConfig{Repository: repo, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create run list service: %w", err)
	}
	runStatusSvc, err := runstatus.NewService(runstatus.ServiceConfig{Repository: repo, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create run status service: %w", err)
	}

	return &Client{
		coordinator: coord,
		workers:     workersSvc,
		runList:     runListSvc,
		runStatus:   runStatusSvc,
		closeFn:     closeFn,
	}, nil
}

func newDeploymentService(cfg Config) (deployment.Service, error) {
	if cfg.FakeWorkers != nil {
		svc, err := fake.NewService(fake.ServiceConfig{
			Workers: toInternalFakeWorkers(cfg.FakeWorkers),
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create fake deployment service: %w", err)
		}
		return svc, nil
	}

	svc, err := remote.NewService(remote.ServiceConfig{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIToken,
		Timeout: cfg.APITimeout,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create remote deployment service: %w", err)
	}
	return svc, nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	return c.closeFn()
}

// DeployAll deploys every deployable worker matching the filter and returns
// the finished run. Worker failures are part of the run, the error is only
// set when the run could not start or the workers could not be listed.
//
// Returns [ErrRunInProgress] if a run is already active.
func (c *Client) DeployAll(ctx context.Context, filter WorkerFilter) (Run, error) {
	err := c.coordinator.DeployAll(ctx, toInternalFilter(filter))
	if err != nil {
		return Run{}, mapError(err)
	}
	return c.State(), nil
}

// RetryFailed deploys again the workers of the last run whose outcome was not
// OK, including the ones a stop left without outcome. When there is nothing to
// retry the last run is returned unchanged.
//
// Returns [ErrRunInProgress] if a run is already active.
func (c *Client) RetryFailed(ctx context.Context) (Run, error) {
	err := c.coordinator.RetryFailed(ctx)
	if err != nil {
		return Run{}, mapError(err)
	}
	return c.State(), nil
}

// Stop stops the active run: no more batches are dispatched and the in-flight
// deployments are left to finish. It's safe to call without an active run.
func (c *Client) Stop() {
	c.coordinator.Stop()
}

// State returns a snapshot of the active or last run.
func (c *Client) State() Run {
	return fromInternalRun(c.coordinator.State())
}

// ListWorkers returns the deployable workers matching the filter.
func (c *Client) ListWorkers(ctx context.Context, filter WorkerFilter) ([]Worker, error) {
	ws, err := c.workers.Run(ctx, workers.Request{Filter: toInternalFilter(filter)})
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalWorkers(ws), nil
}

// ListRunsOpts are the options of [Client.ListRuns].
type ListRunsOpts struct {
	// Limit caps the number of runs, zero means all.
	Limit int
	// OnlyFailed only returns runs with failures or a listing error.
	OnlyFailed bool
}

// ListRuns returns the finished runs of the history, newest first.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]Run, error) {
	runs, err := c.runList.Run(ctx, runlist.Request{Limit: opts.Limit, OnlyFailed: opts.OnlyFailed})
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalRuns(runs), nil
}

// GetRun returns a finished run of the history by ID, "latest" returns the
// most recent one.
//
// Returns [ErrNotFound] if the run does not exist.
func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	run, err := c.runStatus.Run(ctx, runstatus.Request{ID: id})
	if err != nil {
		return Run{}, mapError(err)
	}
	return fromInternalRun(*run), nil
}
