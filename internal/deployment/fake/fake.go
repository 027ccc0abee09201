package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
)

// Behavior is the simulated result of deploying a fake worker.
type Behavior string

const (
	BehaviorOK          Behavior = "ok"
	BehaviorReject      Behavior = "reject"
	BehaviorTimeout     Behavior = "timeout"
	BehaviorUnreachable Behavior = "unreachable"
)

// Valid returns true if the behavior is known.
func (b Behavior) Valid() bool {
	switch b {
	case BehaviorOK, BehaviorReject, BehaviorTimeout, BehaviorUnreachable:
		return true
	}
	return false
}

// Worker is a simulated fleet worker.
type Worker struct {
	Worker   model.Worker
	Behavior Behavior
	// FailAttempts is the number of attempts that will follow Behavior, after
	// those the worker deploys OK. Zero means always.
	FailAttempts int
	Delay        time.Duration
}

// ServiceConfig is the configuration for the fake deployment service.
type ServiceConfig struct {
	Workers []Worker
	// ListErr is returned by ListDeployable when set.
	ListErr error
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	// Normalized on our own copy, the caller keeps its workers untouched.
	c.Workers = append([]Worker(nil), c.Workers...)

	seen := map[string]bool{}
	for i, w := range c.Workers {
		if err := w.Worker.Validate(); err != nil {
			return fmt.Errorf("invalid worker %d: %w", i, err)
		}
		if seen[w.Worker.ID] {
			return fmt.Errorf("worker %s: %w", w.Worker.ID, model.ErrAlreadyExists)
		}
		seen[w.Worker.ID] = true

		if w.Behavior == "" {
			c.Workers[i].Behavior = BehaviorOK
		} else if !w.Behavior.Valid() {
			return fmt.Errorf("worker %s has unknown behavior %q: %w", w.Worker.ID, w.Behavior, model.ErrNotValid)
		}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "deployment.Fake"})
	return nil
}

// Service is a fake implementation of deployment.Service.
// It simulates a fleet without talking to any backend.
type Service struct {
	workers  []Worker
	listErr  error
	attempts map[string]int
	mu       sync.Mutex
	logger   log.Logger
}

// NewService creates a new fake deployment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		workers:  cfg.Workers,
		listErr:  cfg.ListErr,
		attempts: make(map[string]int),
		logger:   cfg.Logger,
	}, nil
}

// ListDeployable returns the fake workers matching the filter.
func (s *Service) ListDeployable(ctx context.Context, filter model.WorkerFilter) ([]model.Worker, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	var workers []model.Worker
	for _, w := range s.workers {
		if filter.Matches(w.Worker) {
			workers = append(workers, w.Worker)
		}
	}

	return workers, nil
}

// DeployOne simulates the deployment of a worker.
func (s *Service) DeployOne(ctx context.Context, id string) error {
	w, attempt, ok := s.attempt(id)
	if !ok {
		return model.NewDeployError(model.DeployErrorKindRejected, "unknown worker", fmt.Errorf("worker %s: %w", id, model.ErrNotFound))
	}

	if w.Delay > 0 {
		t := time.NewTimer(w.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return model.NewDeployError(model.DeployErrorKindTimeout, "", ctx.Err())
			}
			return model.NewDeployError(model.DeployErrorKindOther, "canceled", ctx.Err())
		case <-t.C:
		}
	}

	behavior := w.Behavior
	if w.FailAttempts > 0 && attempt > w.FailAttempts {
		behavior = BehaviorOK
	}

	s.logger.Debugf("Fake deploy of worker %s (attempt %d): %s", id, attempt, behavior)

	switch behavior {
	case BehaviorReject:
		return model.NewDeployError(model.DeployErrorKindRejected, "worker rejected the deployment", nil)
	case BehaviorTimeout:
		return model.NewDeployError(model.DeployErrorKindTimeout, "worker did not answer in time", nil)
	case BehaviorUnreachable:
		return model.NewDeployError(model.DeployErrorKindCannotConnect, "", fmt.Errorf("dial %s: connection refused", w.Worker.Address))
	}

	return nil
}

// Attempts returns the number of deploy attempts received for a worker.
func (s *Service) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

func (s *Service) attempt(id string) (Worker, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.workers {
		if w.Worker.ID == id {
			s.attempts[id]++
			return w, s.attempts[id], true
		}
	}
	return Worker{}, 0, false
}
