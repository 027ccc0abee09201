package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.RunRepository.
type Repository struct {
	runs   map[string]model.DeployRun
	mu     sync.RWMutex
	logger log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		runs:   make(map[string]model.DeployRun),
		logger: cfg.Logger,
	}, nil
}

// SaveRun stores a run.
func (r *Repository) SaveRun(ctx context.Context, run model.DeployRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.ID] = run.Copy()
	r.logger.Debugf("Saved run in repository: %s", run.ID)

	return nil
}

// GetRun retrieves a run by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.DeployRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
	}

	runCopy := run.Copy()
	return &runCopy, nil
}

// ListRuns returns the runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, opts storage.ListRunsOptions) ([]model.DeployRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]model.DeployRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run.Copy())
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if opts.Limit > 0 && len(runs) > opts.Limit {
		runs = runs[:opts.Limit]
	}

	return runs, nil
}
