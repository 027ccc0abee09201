package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/wdeploy/internal/deployment"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/storage"
)

const (
	// BatchSize is the max number of concurrent worker deployments.
	BatchSize = 10

	// CannotConnectDetail is the outcome detail of workers that could not be reached.
	CannotConnectDetail = "cannot connect to worker"
)

// CoordinatorConfig is the configuration for the deploy coordinator.
type CoordinatorConfig struct {
	DeploymentService deployment.Service
	// Repository is optional, when set every finished run is stored.
	Repository storage.RunRepository
	Logger     log.Logger
}

func (c *CoordinatorConfig) defaults() error {
	if c.DeploymentService == nil {
		return fmt.Errorf("deployment service is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Deploy"})
	return nil
}

// Coordinator deploys workers in sequential batches of BatchSize, deploying
// the workers of a batch concurrently. Only one run can be active at a time.
type Coordinator struct {
	deployer deployment.Service
	repo     storage.RunRepository
	logger   log.Logger

	mu            sync.Mutex
	run           model.DeployRun
	busy          bool
	stop          chan struct{}
	stopRequested bool
}

// NewCoordinator creates a new deploy coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Coordinator{
		deployer: cfg.DeploymentService,
		repo:     cfg.Repository,
		logger:   cfg.Logger,
	}, nil
}

// DeployAll lists the deployable workers and deploys all of them. It returns
// once every dispatched worker has an outcome. Per worker failures are
// recorded in the run, only listing failures are returned.
func (c *Coordinator) DeployAll(ctx context.Context, filter model.WorkerFilter) error {
	if err := filter.Validate(); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	stop, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()

	return c.deployAll(ctx, stop, filter)
}

// StartDeployAll is the asynchronous version of DeployAll. A run in progress
// or an invalid filter are returned straight away, the returned channel
// receives the result of the run once it finishes.
func (c *Coordinator) StartDeployAll(ctx context.Context, filter model.WorkerFilter) (<-chan error, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	stop, err := c.acquire()
	if err != nil {
		return nil, err
	}

	return c.background(func() error { return c.deployAll(ctx, stop, filter) }), nil
}

func (c *Coordinator) deployAll(ctx context.Context, stop <-chan struct{}, filter model.WorkerFilter) error {
	c.mu.Lock()
	c.run = model.DeployRun{
		ID:        ulid.Make().String(),
		Kind:      model.RunKindDeployAll,
		StartedAt: time.Now().UTC(),
	}
	c.mu.Unlock()

	workers, err := c.deployer.ListDeployable(ctx, filter)
	if err != nil {
		err = fmt.Errorf("could not list deployable workers: %w", err)

		c.mu.Lock()
		c.run.LastError = err.Error()
		now := time.Now().UTC()
		c.run.FinishedAt = &now
		run := c.run.Copy()
		c.mu.Unlock()

		c.logger.Errorf("Deploy run %s aborted: %s", run.ID, err)
		c.save(ctx, run)
		return err
	}

	c.execute(ctx, stop, workers)
	return nil
}

// RetryFailed deploys again the workers of the previous run whose outcome was
// not OK. It's a no-op when there is nothing to retry.
func (c *Coordinator) RetryFailed(ctx context.Context) error {
	stop, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()

	c.retryFailed(ctx, stop)
	return nil
}

// StartRetryFailed is the asynchronous version of RetryFailed.
func (c *Coordinator) StartRetryFailed(ctx context.Context) (<-chan error, error) {
	stop, err := c.acquire()
	if err != nil {
		return nil, err
	}

	return c.background(func() error {
		c.retryFailed(ctx, stop)
		return nil
	}), nil
}

func (c *Coordinator) retryFailed(ctx context.Context, stop <-chan struct{}) {
	c.mu.Lock()
	workers := c.run.NotOK()
	prevID := c.run.ID
	if len(workers) == 0 {
		c.mu.Unlock()
		c.logger.Infof("Nothing to retry")
		return
	}
	c.run = model.DeployRun{
		ID:        ulid.Make().String(),
		Kind:      model.RunKindRetryFailed,
		StartedAt: time.Now().UTC(),
	}
	c.mu.Unlock()

	c.logger.Infof("Retrying %d workers from run %s", len(workers), prevID)
	c.execute(ctx, stop, workers)
}

// background runs an already acquired run. The run is released before the
// result is sent.
func (c *Coordinator) background(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := fn()
		c.release()
		done <- err
	}()
	return done
}

// Stop requests the cancellation of the active run. No batch is dispatched
// after Stop returns, in-flight deployments are left to settle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.busy || c.stopRequested {
		return
	}
	c.stopRequested = true
	close(c.stop)
	c.logger.Infof("Stop requested for run %s", c.run.ID)
}

// State returns a copy of the current (or last) run.
func (c *Coordinator) State() model.DeployRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.Copy()
}

func (c *Coordinator) acquire() (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return nil, fmt.Errorf("could not start run: %w", model.ErrRunInProgress)
	}
	c.busy = true
	c.stopRequested = false
	c.stop = make(chan struct{})

	return c.stop, nil
}

func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
}

func (c *Coordinator) execute(ctx context.Context, stop <-chan struct{}, workers []model.Worker) {
	c.mu.Lock()
	c.run.Items = append([]model.Worker(nil), workers...)
	c.run.StartedAt = time.Now().UTC()
	c.run.IsRunning = true
	runID := c.run.ID
	c.mu.Unlock()

	logger := c.logger.WithValues(log.Kv{"run": runID})
	batches := Batches(workers, BatchSize)
	logger.Infof("Deploying %d workers in %d batches", len(workers), len(batches))

	stopped := false
	for i, batch := range batches {
		if interrupted(ctx, stop) {
			stopped = true
			logger.Warningf("Run stopped before batch %d/%d", i+1, len(batches))
			break
		}

		logger.Debugf("Dispatching batch %d/%d (%d workers)", i+1, len(batches), len(batch))
		var wg sync.WaitGroup
		for _, w := range batch {
			wg.Add(1)
			go func(w model.Worker) {
				defer wg.Done()
				c.deployWorker(ctx, logger, w)
			}(w)
		}
		wg.Wait()
	}

	c.mu.Lock()
	now := time.Now().UTC()
	c.run.IsRunning = false
	c.run.Stopped = stopped
	c.run.FinishedAt = &now
	run := c.run.Copy()
	c.mu.Unlock()

	logger.Infof("Deploy run finished: %d ok, %d failed, %d/%d (%d%%)", run.SuccessCount, len(run.FailedItems), run.Progress(), run.WorkerCount(), run.ProgressPercentage())
	c.save(ctx, run)
}

func (c *Coordinator) deployWorker(ctx context.Context, logger log.Logger, w model.Worker) {
	err := c.deployer.DeployOne(ctx, w.ID)

	outcome := model.DeployOutcome{
		Worker:     w,
		Status:     model.OutcomeStatusOK,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		outcome.Status, outcome.Detail = classify(err)
		logger.Warningf("Worker %s deploy failed: %s", w.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.run.Outcomes = append(c.run.Outcomes, outcome)
	if outcome.Status == model.OutcomeStatusOK {
		c.run.SuccessCount++
	} else {
		c.run.FailedItems = append(c.run.FailedItems, w)
	}
}

func (c *Coordinator) save(ctx context.Context, run model.DeployRun) {
	if c.repo == nil {
		return
	}

	// The run happened even if the caller is gone, store it anyway.
	if err := c.repo.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Errorf("Could not save run %s: %s", run.ID, err)
	}
}

// classify maps a deployment error to an outcome status and its detail.
func classify(err error) (model.OutcomeStatus, string) {
	detail := err.Error()
	var derr *model.DeployError
	if errors.As(err, &derr) && derr.Detail != "" {
		detail = derr.Detail
	}

	switch model.DeployErrorKindOf(err) {
	case model.DeployErrorKindRejected:
		return model.OutcomeStatusError, detail
	case model.DeployErrorKindTimeout:
		return model.OutcomeStatusTimeout, detail
	case model.DeployErrorKindCannotConnect:
		return model.OutcomeStatusError, CannotConnectDetail
	case model.DeployErrorKindOther:
		return model.OutcomeStatusError, detail
	}

	return model.OutcomeStatusError, detail
}

func interrupted(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Batches splits the workers in consecutive batches of size, keeping the order.
func Batches(workers []model.Worker, size int) [][]model.Worker {
	if size <= 0 {
		size = BatchSize
	}

	batches := make([][]model.Worker, 0, (len(workers)+size-1)/size)
	for start := 0; start < len(workers); start += size {
		end := min(start+size, len(workers))
		batches = append(batches, workers[start:end])
	}
	return batches
}
