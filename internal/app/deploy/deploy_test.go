package deploy_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/wdeploy/internal/app/deploy"
	"github.com/slok/wdeploy/internal/deployment/deploymentmock"
	"github.com/slok/wdeploy/internal/deployment/fake"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/storage/storagemock"
)

func fleet(n int) []model.Worker {
	ws := make([]model.Worker, 0, n)
	for i := 0; i < n; i++ {
		ws = append(ws, model.Worker{ID: fmt.Sprintf("w-%02d", i), Name: fmt.Sprintf("worker-%02d", i)})
	}
	return ws
}

func fakeFleet(n int, behavior func(i int) fake.Worker) []fake.Worker {
	ws := make([]fake.Worker, 0, n)
	for i, w := range fleet(n) {
		fw := fake.Worker{Worker: w}
		if behavior != nil {
			fw = behavior(i)
			fw.Worker = w
		}
		ws = append(ws, fw)
	}
	return ws
}

func newCoordinator(t *testing.T, cfg deploy.CoordinatorConfig) *deploy.Coordinator {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.Noop
	}
	c, err := deploy.NewCoordinator(cfg)
	require.NoError(t, err)
	return c
}

func newFakeCoordinator(t *testing.T, workers []fake.Worker) (*deploy.Coordinator, *fake.Service) {
	t.Helper()
	svc, err := fake.NewService(fake.ServiceConfig{Workers: workers})
	require.NoError(t, err)
	return newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: svc}), svc
}

func ids(ws []model.Worker) []string {
	res := make([]string, 0, len(ws))
	for _, w := range ws {
		res = append(res, w.ID)
	}
	return res
}

func TestNewCoordinator(t *testing.T) {
	tests := map[string]struct {
		config deploy.CoordinatorConfig
		expErr bool
	}{
		"A valid config should create the coordinator.": {
			config: deploy.CoordinatorConfig{
				DeploymentService: &deploymentmock.MockService{},
				Repository:        &storagemock.MockRunRepository{},
				Logger:            log.Noop,
			},
		},
		"A missing repository should be valid.": {
			config: deploy.CoordinatorConfig{DeploymentService: &deploymentmock.MockService{}},
		},
		"A missing deployment service should fail.": {
			config: deploy.CoordinatorConfig{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := deploy.NewCoordinator(test.config)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, c)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, c)
			}
		})
	}
}

func TestBatches(t *testing.T) {
	tests := map[string]struct {
		workers    int
		size       int
		expBatches []int
	}{
		"No workers should have no batches.": {
			workers:    0,
			size:       10,
			expBatches: []int{},
		},
		"25 workers should be split in 10, 10 and 5.": {
			workers:    25,
			size:       10,
			expBatches: []int{10, 10, 5},
		},
		"An exact multiple should have full batches.": {
			workers:    20,
			size:       10,
			expBatches: []int{10, 10},
		},
		"An invalid size should use the default batch size.": {
			workers:    11,
			size:       0,
			expBatches: []int{10, 1},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			workers := fleet(test.workers)
			batches := deploy.Batches(workers, test.size)

			sizes := []int{}
			var flat []model.Worker
			for _, b := range batches {
				sizes = append(sizes, len(b))
				flat = append(flat, b...)
			}
			assert.Equal(t, test.expBatches, sizes)
			assert.Equal(t, ids(workers), ids(flat))
		})
	}
}

func TestCoordinatorDeployAll(t *testing.T) {
	tests := map[string]struct {
		workers        []fake.Worker
		expCount       int
		expSuccess     int
		expFailed      int
		expStatuses    map[model.OutcomeStatus]int
		expPercentage  int
		expSuccessful  bool
		expFailDetails map[string]string
	}{
		"Deploying all the workers successfully.": {
			workers:       fakeFleet(25, nil),
			expCount:      25,
			expSuccess:    25,
			expFailed:     0,
			expStatuses:   map[model.OutcomeStatus]int{model.OutcomeStatusOK: 25},
			expPercentage: 100,
			expSuccessful: true,
		},
		"Deploying with some timeouts should record them as timeouts.": {
			workers: fakeFleet(25, func(i int) fake.Worker {
				if i%5 == 0 {
					return fake.Worker{Behavior: fake.BehaviorTimeout}
				}
				return fake.Worker{}
			}),
			expCount:      25,
			expSuccess:    20,
			expFailed:     5,
			expStatuses:   map[model.OutcomeStatus]int{model.OutcomeStatusOK: 20, model.OutcomeStatusTimeout: 5},
			expPercentage: 100,
			expSuccessful: true,
		},
		"Rejected and unreachable workers should be errors.": {
			workers: fakeFleet(3, func(i int) fake.Worker {
				switch i {
				case 0:
					return fake.Worker{Behavior: fake.BehaviorReject}
				case 1:
					return fake.Worker{Behavior: fake.BehaviorUnreachable}
				}
				return fake.Worker{}
			}),
			expCount:      3,
			expSuccess:    1,
			expFailed:     2,
			expStatuses:   map[model.OutcomeStatus]int{model.OutcomeStatusOK: 1, model.OutcomeStatusError: 2},
			expPercentage: 100,
			expSuccessful: true,
			expFailDetails: map[string]string{
				"w-00": "worker rejected the deployment",
				"w-01": deploy.CannotConnectDetail,
			},
		},
		"Deploying an empty fleet should finish without progress.": {
			workers:       nil,
			expCount:      0,
			expStatuses:   map[model.OutcomeStatus]int{},
			expPercentage: 0,
			expSuccessful: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)

			c, _ := newFakeCoordinator(t, test.workers)

			err := c.DeployAll(context.Background(), model.WorkerFilter{})
			require.NoError(err)

			run := c.State()
			assert.False(run.IsRunning)
			assert.False(run.Stopped)
			assert.Empty(run.LastError)
			assert.NotEmpty(run.ID)
			assert.Equal(model.RunKindDeployAll, run.Kind)
			assert.NotNil(run.FinishedAt)
			assert.Equal(test.expCount, run.WorkerCount())
			assert.Len(run.Outcomes, test.expCount)
			assert.Equal(test.expSuccess, run.SuccessCount)
			assert.Len(run.FailedItems, test.expFailed)
			assert.Equal(len(run.Outcomes), run.SuccessCount+len(run.FailedItems))
			assert.Equal(test.expPercentage, run.ProgressPercentage())
			assert.Equal(test.expSuccessful, run.IsSuccessful())

			statuses := map[model.OutcomeStatus]int{}
			seen := map[string]int{}
			for _, o := range run.Outcomes {
				statuses[o.Status]++
				seen[o.Worker.ID]++
				if o.Status == model.OutcomeStatusOK {
					assert.Empty(o.Detail)
				} else {
					assert.NotEmpty(o.Detail)
				}
				if d, ok := test.expFailDetails[o.Worker.ID]; ok {
					assert.Equal(d, o.Detail)
				}
			}
			assert.Equal(test.expStatuses, statuses)

			// Every submitted worker has exactly one outcome.
			for _, w := range run.Items {
				assert.Equal(1, seen[w.ID], "worker %s", w.ID)
			}
		})
	}
}

func TestCoordinatorDeployAllListingFailure(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	mSvc := &deploymentmock.MockService{}
	mSvc.On("ListDeployable", mock.Anything, model.WorkerFilter{}).Once().Return(nil, errors.New("api unreachable"))

	mRepo := &storagemock.MockRunRepository{}
	mRepo.On("SaveRun", mock.Anything, mock.MatchedBy(func(r model.DeployRun) bool {
		return r.LastError != "" && len(r.Outcomes) == 0 && !r.IsRunning
	})).Once().Return(nil)

	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: mSvc, Repository: mRepo})

	err := c.DeployAll(context.Background(), model.WorkerFilter{})
	require.Error(err)

	run := c.State()
	assert.Contains(run.LastError, "api unreachable")
	assert.False(run.IsRunning)
	assert.Empty(run.Outcomes)
	assert.Equal(0, run.ProgressPercentage())

	mSvc.AssertExpectations(t)
	mSvc.AssertNotCalled(t, "DeployOne", mock.Anything, mock.Anything)
	mRepo.AssertExpectations(t)
}

func TestCoordinatorDeployAllResetsPreviousRun(t *testing.T) {
	require := require.New(t)

	mSvc := &deploymentmock.MockService{}
	mSvc.On("ListDeployable", mock.Anything, mock.Anything).Once().Return(fleet(3), nil)
	mSvc.On("DeployOne", mock.Anything, mock.Anything).Return(nil)
	mSvc.On("ListDeployable", mock.Anything, mock.Anything).Once().Return(nil, errors.New("boom"))

	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: mSvc})

	require.NoError(c.DeployAll(context.Background(), model.WorkerFilter{}))
	require.Len(c.State().Outcomes, 3)

	require.Error(c.DeployAll(context.Background(), model.WorkerFilter{}))
	run := c.State()
	assert.Empty(t, run.Outcomes)
	assert.Empty(t, run.Items)
	assert.Equal(t, 0, run.SuccessCount)
	assert.Empty(t, run.FailedItems)
}

func TestCoordinatorDeployAllInvalidFilter(t *testing.T) {
	mSvc := &deploymentmock.MockService{}
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: mSvc})

	err := c.DeployAll(context.Background(), model.WorkerFilter{Status: "bad"})
	assert.ErrorIs(t, err, model.ErrNotValid)
	mSvc.AssertNotCalled(t, "ListDeployable", mock.Anything, mock.Anything)
}

func TestCoordinatorSavesFinishedRun(t *testing.T) {
	mSvc := &deploymentmock.MockService{}
	mSvc.On("ListDeployable", mock.Anything, mock.Anything).Once().Return(fleet(12), nil)
	mSvc.On("DeployOne", mock.Anything, "w-03").Return(model.NewDeployError(model.DeployErrorKindRejected, "bad", nil))
	mSvc.On("DeployOne", mock.Anything, mock.Anything).Return(nil)

	mRepo := &storagemock.MockRunRepository{}
	mRepo.On("SaveRun", mock.Anything, mock.MatchedBy(func(r model.DeployRun) bool {
		return len(r.Outcomes) == 12 && r.SuccessCount == 11 && r.FinishedAt != nil && !r.IsRunning
	})).Once().Return(errors.New("disk full"))

	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: mSvc, Repository: mRepo})

	// Storage errors are not run errors.
	err := c.DeployAll(context.Background(), model.WorkerFilter{})
	require.NoError(t, err)
	mRepo.AssertExpectations(t)
}

func TestCoordinatorOutcomeDetails(t *testing.T) {
	tests := map[string]struct {
		err       error
		expStatus model.OutcomeStatus
		expDetail string
	}{
		"A rejection should use the error detail.": {
			err:       model.NewDeployError(model.DeployErrorKindRejected, "bad", nil),
			expStatus: model.OutcomeStatusError,
			expDetail: "bad",
		},
		"A timeout should use the error detail.": {
			err:       model.NewDeployError(model.DeployErrorKindTimeout, "slow", errors.New("deadline")),
			expStatus: model.OutcomeStatusTimeout,
			expDetail: "slow",
		},
		"A connection failure should use the fixed detail.": {
			err:       model.NewDeployError(model.DeployErrorKindCannotConnect, "refused", errors.New("dial")),
			expStatus: model.OutcomeStatusError,
			expDetail: deploy.CannotConnectDetail,
		},
		"Other failures with detail should use the error detail.": {
			err:       model.NewDeployError(model.DeployErrorKindOther, "canceled", context.Canceled),
			expStatus: model.OutcomeStatusError,
			expDetail: "canceled",
		},
		"Other failures without detail should use the error message.": {
			err:       model.NewDeployError(model.DeployErrorKindOther, "", errors.New("boom")),
			expStatus: model.OutcomeStatusError,
			expDetail: "other: boom",
		},
		"Unknown errors should use the error message.": {
			err:       errors.New("kaboom"),
			expStatus: model.OutcomeStatusError,
			expDetail: "kaboom",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)

			mSvc := &deploymentmock.MockService{}
			mSvc.On("ListDeployable", mock.Anything, mock.Anything).Once().Return(fleet(1), nil)
			mSvc.On("DeployOne", mock.Anything, "w-00").Once().Return(test.err)

			c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: mSvc})
			require.NoError(c.DeployAll(context.Background(), model.WorkerFilter{}))

			run := c.State()
			require.Len(run.Outcomes, 1)
			assert.Equal(test.expStatus, run.Outcomes[0].Status)
			assert.Equal(test.expDetail, run.Outcomes[0].Detail)
			mSvc.AssertExpectations(t)
		})
	}
}

// orderedDeployer records the order in which deployments start and finish.
type orderedDeployer struct {
	workers []model.Worker
	delay   func(id string) time.Duration

	mu     sync.Mutex
	seq    int
	starts map[string]int
	ends   map[string]int
	active int
	peak   int
}

func (o *orderedDeployer) ListDeployable(_ context.Context, _ model.WorkerFilter) ([]model.Worker, error) {
	return o.workers, nil
}

func (o *orderedDeployer) DeployOne(_ context.Context, id string) error {
	o.mu.Lock()
	o.seq++
	o.starts[id] = o.seq
	o.active++
	o.peak = max(o.peak, o.active)
	o.mu.Unlock()

	time.Sleep(o.delay(id))

	o.mu.Lock()
	o.seq++
	o.ends[id] = o.seq
	o.active--
	o.mu.Unlock()
	return nil
}

func TestCoordinatorBatchBarrier(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	workers := fleet(25)
	d := &orderedDeployer{
		workers: workers,
		starts:  map[string]int{},
		ends:    map[string]int{},
		delay: func(id string) time.Duration {
			// Last items of each batch are the slowest ones.
			var n int
			_, _ = fmt.Sscanf(id, "w-%d", &n)
			return time.Duration(1+(n%10)*2) * time.Millisecond
		},
	}
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})

	require.NoError(c.DeployAll(context.Background(), model.WorkerFilter{}))

	batches := deploy.Batches(workers, deploy.BatchSize)
	require.Len(batches, 3)
	assert.Len(batches[2], 5)

	for k := 0; k < len(batches)-1; k++ {
		lastEnd := 0
		for _, w := range batches[k] {
			lastEnd = max(lastEnd, d.ends[w.ID])
		}
		for _, w := range batches[k+1] {
			assert.Greater(d.starts[w.ID], lastEnd, "worker %s of batch %d started before batch %d settled", w.ID, k+1, k)
		}
	}

	assert.LessOrEqual(d.peak, deploy.BatchSize)
	assert.Len(c.State().Outcomes, 25)
}

// blockingDeployer blocks every deployment until released.
type blockingDeployer struct {
	workers  []model.Worker
	listed   chan struct{}
	release  chan struct{}
	started  chan string
	listWait chan struct{}
}

func newBlockingDeployer(workers []model.Worker) *blockingDeployer {
	return &blockingDeployer{
		workers: workers,
		listed:  make(chan struct{}, 1),
		release: make(chan struct{}),
		started: make(chan string, len(workers)),
	}
}

func (b *blockingDeployer) ListDeployable(_ context.Context, _ model.WorkerFilter) ([]model.Worker, error) {
	b.listed <- struct{}{}
	if b.listWait != nil {
		<-b.listWait
	}
	return b.workers, nil
}

func (b *blockingDeployer) DeployOne(_ context.Context, id string) error {
	b.started <- id
	<-b.release
	return nil
}

func TestCoordinatorRejectsConcurrentRuns(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	d := newBlockingDeployer(fleet(3))
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})

	done := make(chan error, 1)
	go func() { done <- c.DeployAll(context.Background(), model.WorkerFilter{}) }()

	require.Eventually(func() bool { return c.State().IsRunning }, time.Second, time.Millisecond)

	err := c.DeployAll(context.Background(), model.WorkerFilter{})
	assert.ErrorIs(err, model.ErrRunInProgress)
	err = c.RetryFailed(context.Background())
	assert.ErrorIs(err, model.ErrRunInProgress)

	close(d.release)
	require.NoError(<-done)

	run := c.State()
	assert.Len(run.Items, 3)
	assert.Len(run.Outcomes, 3)
}

func TestCoordinatorRejectsRunsDuringListing(t *testing.T) {
	d := newBlockingDeployer(fleet(1))
	d.listWait = make(chan struct{})
	close(d.release)
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})

	done := make(chan error, 1)
	go func() { done <- c.DeployAll(context.Background(), model.WorkerFilter{}) }()
	<-d.listed

	// Not dispatching yet, but a run is already in progress.
	assert.False(t, c.State().IsRunning)
	assert.ErrorIs(t, c.DeployAll(context.Background(), model.WorkerFilter{}), model.ErrRunInProgress)

	close(d.listWait)
	require.NoError(t, <-done)
	assert.Len(t, c.State().Outcomes, 1)
}

func TestCoordinatorStop(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	d := newBlockingDeployer(fleet(25))
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})

	done := make(chan error, 1)
	go func() { done <- c.DeployAll(context.Background(), model.WorkerFilter{}) }()

	// Wait for the full first batch to be in flight.
	for i := 0; i < deploy.BatchSize; i++ {
		<-d.started
	}
	c.Stop()
	c.Stop() // Idempotent.
	close(d.release)
	require.NoError(<-done)

	run := c.State()
	assert.True(run.Stopped)
	assert.False(run.IsRunning)
	assert.Equal(25, run.WorkerCount())
	assert.Len(run.Outcomes, deploy.BatchSize)
	assert.Equal(40, run.ProgressPercentage())
	assert.False(run.IsSuccessful())
	assert.Len(d.started, 0)

	// Not attempted workers are retried.
	require.NoError(c.RetryFailed(context.Background()))
	run = c.State()
	assert.Equal(model.RunKindRetryFailed, run.Kind)
	assert.Equal(ids(fleet(25)[deploy.BatchSize:]), ids(run.Items))
	assert.Len(run.Outcomes, 15)
	assert.True(run.IsSuccessful())
}

func TestCoordinatorStopWhenIdle(t *testing.T) {
	c, _ := newFakeCoordinator(t, fakeFleet(2, nil))
	c.Stop()

	// A previous stop doesn't affect new runs.
	require.NoError(t, c.DeployAll(context.Background(), model.WorkerFilter{}))
	run := c.State()
	assert.False(t, run.Stopped)
	assert.Len(t, run.Outcomes, 2)
}

func TestCoordinatorContextCancelStopsDispatch(t *testing.T) {
	d := newBlockingDeployer(fleet(15))
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.DeployAll(ctx, model.WorkerFilter{}) }()

	for i := 0; i < deploy.BatchSize; i++ {
		<-d.started
	}
	cancel()
	close(d.release)
	require.NoError(t, <-done)

	run := c.State()
	assert.True(t, run.Stopped)
	assert.Len(t, run.Outcomes, deploy.BatchSize)
}

func TestCoordinatorRetryFailed(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	// Every 5th worker times out once.
	workers := fakeFleet(25, func(i int) fake.Worker {
		if i%5 == 0 {
			return fake.Worker{Behavior: fake.BehaviorTimeout, FailAttempts: 1}
		}
		return fake.Worker{}
	})
	c, svc := newFakeCoordinator(t, workers)

	require.NoError(c.DeployAll(context.Background(), model.WorkerFilter{}))
	first := c.State()
	require.Len(first.FailedItems, 5)
	for _, o := range first.Outcomes {
		if o.Status != model.OutcomeStatusOK {
			assert.Equal(model.OutcomeStatusTimeout, o.Status)
		}
	}

	require.NoError(c.RetryFailed(context.Background()))
	retry := c.State()

	assert.NotEqual(first.ID, retry.ID)
	assert.Equal(model.RunKindRetryFailed, retry.Kind)
	assert.ElementsMatch([]string{"w-00", "w-05", "w-10", "w-15", "w-20"}, ids(retry.Items))
	assert.Equal(5, retry.SuccessCount)
	assert.Empty(retry.FailedItems)
	assert.True(retry.IsSuccessful())

	// Only the failed subset was submitted again.
	for i, w := range fleet(25) {
		exp := 1
		if i%5 == 0 {
			exp = 2
		}
		assert.Equal(exp, svc.Attempts(w.ID), "worker %s", w.ID)
	}

	// Nothing left to retry.
	require.NoError(c.RetryFailed(context.Background()))
	assert.Equal(retry.ID, c.State().ID)
}

func TestCoordinatorRetryFailedWithoutRun(t *testing.T) {
	mSvc := &deploymentmock.MockService{}
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: mSvc})

	require.NoError(t, c.RetryFailed(context.Background()))
	assert.Empty(t, c.State().ID)
	mSvc.AssertNotCalled(t, "DeployOne", mock.Anything, mock.Anything)
}

// observingDeployer samples the coordinator state on every deployment.
type observingDeployer struct {
	workers []model.Worker
	c       *deploy.Coordinator

	mu          sync.Mutex
	percentages []int
	violations  int
}

func (o *observingDeployer) ListDeployable(_ context.Context, _ model.WorkerFilter) ([]model.Worker, error) {
	return o.workers, nil
}

func (o *observingDeployer) DeployOne(_ context.Context, id string) error {
	o.sample()
	time.Sleep(time.Millisecond)
	var n int
	_, _ = fmt.Sscanf(id, "w-%d", &n)
	if n%3 == 0 {
		return model.NewDeployError(model.DeployErrorKindOther, "", errors.New("boom"))
	}
	return nil
}

func (o *observingDeployer) sample() {
	o.mu.Lock()
	defer o.mu.Unlock()

	run := o.c.State()
	if run.SuccessCount+len(run.FailedItems) != len(run.Outcomes) {
		o.violations++
	}
	o.percentages = append(o.percentages, run.ProgressPercentage())
}

func TestCoordinatorProgressIsMonotonic(t *testing.T) {
	d := &observingDeployer{workers: fleet(47)}
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})
	d.c = c

	require.NoError(t, c.DeployAll(context.Background(), model.WorkerFilter{}))
	d.sample()

	require.NotEmpty(t, d.percentages)
	for i := 1; i < len(d.percentages); i++ {
		assert.GreaterOrEqual(t, d.percentages[i], d.percentages[i-1])
	}
	for _, p := range d.percentages[:len(d.percentages)-1] {
		assert.Less(t, p, 100)
	}
	assert.Equal(t, 100, d.percentages[len(d.percentages)-1])
	assert.Zero(t, d.violations)
}

func TestCoordinatorStartDeployAll(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	d := newBlockingDeployer(fleet(3))
	c := newCoordinator(t, deploy.CoordinatorConfig{DeploymentService: d})

	done, err := c.StartDeployAll(context.Background(), model.WorkerFilter{})
	require.NoError(err)

	// The run is acquired before returning.
	_, err = c.StartDeployAll(context.Background(), model.WorkerFilter{})
	assert.ErrorIs(err, model.ErrRunInProgress)
	_, err = c.StartRetryFailed(context.Background())
	assert.ErrorIs(err, model.ErrRunInProgress)

	close(d.release)
	require.NoError(<-done)
	assert.Len(c.State().Outcomes, 3)

	// Nothing failed, retry is a no-op.
	prevID := c.State().ID
	done, err = c.StartRetryFailed(context.Background())
	require.NoError(err)
	require.NoError(<-done)
	assert.Equal(prevID, c.State().ID)
}

func TestCoordinatorStartDeployAllInvalidFilter(t *testing.T) {
	c, _ := newFakeCoordinator(t, fakeFleet(1, nil))

	_, err := c.StartDeployAll(context.Background(), model.WorkerFilter{Status: "exploded"})
	assert.ErrorIs(t, err, model.ErrNotValid)

	// Nothing was acquired.
	done, err := c.StartDeployAll(context.Background(), model.WorkerFilter{})
	require.NoError(t, err)
	require.NoError(t, <-done)
}
