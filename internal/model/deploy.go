package model

import (
	"math"
	"time"
)

// OutcomeStatus is the terminal status of a single worker deployment.
type OutcomeStatus string

const (
	// OutcomeStatusOK means the worker was deployed.
	OutcomeStatusOK OutcomeStatus = "OK"
	// OutcomeStatusError means the worker deployment failed.
	OutcomeStatusError OutcomeStatus = "ERROR"
	// OutcomeStatusTimeout means the worker deployment timed out.
	OutcomeStatusTimeout OutcomeStatus = "TIMEOUT"
)

// Valid returns true if the status is a known outcome status.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeStatusOK, OutcomeStatusError, OutcomeStatusTimeout:
		return true
	}
	return false
}

// DeployOutcome is the result of deploying one worker in a run.
type DeployOutcome struct {
	Worker     Worker
	Status     OutcomeStatus
	Detail     string // Empty when Status is OK.
	FinishedAt time.Time
}

// RunKind is the operation that created a deploy run.
type RunKind string

const (
	// RunKindDeployAll is a run over the full deployable set.
	RunKindDeployAll RunKind = "deploy-all"
	// RunKindRetryFailed is a run over the not OK subset of the previous run.
	RunKindRetryFailed RunKind = "retry-failed"
)

// DeployRun is the state of one deploy run.
type DeployRun struct {
	ID           string
	Kind         RunKind
	Items        []Worker
	Outcomes     []DeployOutcome // Completion order.
	SuccessCount int
	FailedItems  []Worker
	StartedAt    time.Time
	FinishedAt   *time.Time
	IsRunning    bool
	Stopped      bool
	LastError    string // Only set when the deployable workers could not be listed.
}

// WorkerCount is the number of workers submitted in the run.
func (r DeployRun) WorkerCount() int { return len(r.Items) }

// Progress is the number of workers that already have an outcome.
func (r DeployRun) Progress() int { return r.SuccessCount + len(r.FailedItems) }

// ProgressPercentage returns the rounded progress percentage. It only
// reaches 100 when every submitted worker has an outcome.
func (r DeployRun) ProgressPercentage() int {
	total := r.WorkerCount()
	if total == 0 {
		return 0
	}

	progress := r.Progress()
	pct := int(math.Round(100 * float64(progress) / float64(total)))
	if pct >= 100 && progress < total {
		return 99
	}
	return pct
}

// IsSuccessful returns true when every submitted worker has an outcome.
//
// It reports completion, not success: a run where all the workers failed is
// also successful. Use HasFailures to know about failures.
func (r DeployRun) IsSuccessful() bool { return r.ProgressPercentage() == 100 }

// HasFailures returns true if any worker of the run failed.
func (r DeployRun) HasFailures() bool { return len(r.FailedItems) > 0 }

// NotOK returns the submitted workers whose outcome is not OK, including the
// ones that never got an outcome because the run was stopped. Submission
// order is kept.
func (r DeployRun) NotOK() []Worker {
	ok := make(map[string]bool, r.SuccessCount)
	for _, o := range r.Outcomes {
		if o.Status == OutcomeStatusOK {
			ok[o.Worker.ID] = true
		}
	}

	var workers []Worker
	for _, w := range r.Items {
		if !ok[w.ID] {
			workers = append(workers, w)
		}
	}
	return workers
}

// Copy returns a deep copy of the run.
func (r DeployRun) Copy() DeployRun {
	c := r
	c.Items = append([]Worker(nil), r.Items...)
	c.Outcomes = append([]DeployOutcome(nil), r.Outcomes...)
	c.FailedItems = append([]Worker(nil), r.FailedItems...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
