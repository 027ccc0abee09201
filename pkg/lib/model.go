package lib

import (
	"time"

	"github.com/slok/wdeploy/internal/deployment/fake"
	"github.com/slok/wdeploy/internal/model"
)

// WorkerStatus is the lifecycle status of a worker as reported by the dashboard.
type WorkerStatus string

const (
	WorkerStatusOnline      WorkerStatus = "online"
	WorkerStatusOffline     WorkerStatus = "offline"
	WorkerStatusMaintenance WorkerStatus = "maintenance"
)

// Worker is a deployable worker. Everything except ID is display only.
type Worker struct {
	ID           string
	Name         string
	Address      string
	Organization string
	Region       string
	Status       WorkerStatus
}

// WorkerFilter selects the deployable workers. Empty fields match everything.
type WorkerFilter struct {
	Status       WorkerStatus
	Organization string
	Region       string
}

// OutcomeStatus is the result of deploying a single worker.
type OutcomeStatus string

const (
	OutcomeStatusOK      OutcomeStatus = "OK"
	OutcomeStatusError   OutcomeStatus = "ERROR"
	OutcomeStatusTimeout OutcomeStatus = "TIMEOUT"
)

// Outcome is the result of deploying one worker in a run.
type Outcome struct {
	Worker Worker
	Status OutcomeStatus
	// Detail is the diagnostic text, empty when Status is OK.
	Detail     string
	FinishedAt time.Time
}

// RunKind is the operation that created a run.
type RunKind string

const (
	RunKindDeployAll   RunKind = "deploy-all"
	RunKindRetryFailed RunKind = "retry-failed"
)

// Run is a read-only snapshot of a deploy run.
type Run struct {
	ID       string
	Kind     RunKind
	Workers  []Worker
	Outcomes []Outcome
	// Failed are the workers whose outcome was not OK.
	Failed       []Worker
	SuccessCount int
	StartedAt    time.Time
	// FinishedAt is nil while the run is active.
	FinishedAt *time.Time
	IsRunning  bool
	// Stopped is true when the run was stopped before dispatching every batch.
	Stopped bool
	// LastError is set when the deployable workers could not be listed.
	LastError string

	// Derived values.
	WorkerCount        int
	Progress           int
	ProgressPercentage int
	// IsSuccessful is true when every worker has an outcome, whatever its status.
	IsSuccessful bool
}

// HasFailures returns true if any worker of the run failed.
func (r Run) HasFailures() bool { return len(r.Failed) > 0 }

// FakeBehavior is the simulated result of deploying a fake worker.
type FakeBehavior string

const (
	FakeBehaviorOK          FakeBehavior = "ok"
	FakeBehaviorReject      FakeBehavior = "reject"
	FakeBehaviorTimeout     FakeBehavior = "timeout"
	FakeBehaviorUnreachable FakeBehavior = "unreachable"
)

// FakeWorker is a simulated worker.
type FakeWorker struct {
	Worker   Worker
	Behavior FakeBehavior
	// FailAttempts is the number of attempts that follow Behavior, after those
	// the worker deploys OK. Zero means always.
	FailAttempts int
	Delay        time.Duration
}

// --- Conversion helpers ---

func toInternalFilter(f WorkerFilter) model.WorkerFilter {
	return model.WorkerFilter{
		Status:       model.WorkerStatus(f.Status),
		Organization: f.Organization,
		Region:       f.Region,
	}
}

func toInternalFakeWorkers(ws []FakeWorker) []fake.Worker {
	res := make([]fake.Worker, 0, len(ws))
	for _, w := range ws {
		res = append(res, fake.Worker{
			Worker: model.Worker{
				ID:           w.Worker.ID,
				Name:         w.Worker.Name,
				Address:      w.Worker.Address,
				Organization: w.Worker.Organization,
				Region:       w.Worker.Region,
				Status:       model.WorkerStatus(w.Worker.Status),
			},
			Behavior:     fake.Behavior(w.Behavior),
			FailAttempts: w.FailAttempts,
			Delay:        w.Delay,
		})
	}
	return res
}

func fromInternalWorker(w model.Worker) Worker {
	return Worker{
		ID:           w.ID,
		Name:         w.Name,
		Address:      w.Address,
		Organization: w.Organization,
		Region:       w.Region,
		Status:       WorkerStatus(w.Status),
	}
}

func fromInternalWorkers(ws []model.Worker) []Worker {
	res := make([]Worker, 0, len(ws))
	for _, w := range ws {
		res = append(res, fromInternalWorker(w))
	}
	return res
}

func fromInternalRun(r model.DeployRun) Run {
	run := Run{
		ID:                 r.ID,
		Kind:               RunKind(r.Kind),
		Workers:            fromInternalWorkers(r.Items),
		Outcomes:           make([]Outcome, 0, len(r.Outcomes)),
		Failed:             fromInternalWorkers(r.FailedItems),
		SuccessCount:       r.SuccessCount,
		StartedAt:          r.StartedAt,
		IsRunning:          r.IsRunning,
		Stopped:            r.Stopped,
		LastError:          r.LastError,
		WorkerCount:        r.WorkerCount(),
		Progress:           r.Progress(),
		ProgressPercentage: r.ProgressPercentage(),
		IsSuccessful:       r.IsSuccessful(),
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		run.FinishedAt = &t
	}
	for _, o := range r.Outcomes {
		run.Outcomes = append(run.Outcomes, Outcome{
			Worker:     fromInternalWorker(o.Worker),
			Status:     OutcomeStatus(o.Status),
			Detail:     o.Detail,
			FinishedAt: o.FinishedAt,
		})
	}
	return run
}

func fromInternalRuns(rs []model.DeployRun) []Run {
	res := make([]Run, 0, len(rs))
	for _, r := range rs {
		res = append(res, fromInternalRun(r))
	}
	return res
}
