package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/wdeploy/internal/model"
)

// JSONPrinter prints deployment information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type workerOutput struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	Organization string `json:"organization,omitempty"`
	Region       string `json:"region,omitempty"`
	Status       string `json:"status"`
}

// runListItem represents a run in the list output (subset of fields).
type runListItem struct {
	ID                 string     `json:"id"`
	Kind               string     `json:"kind"`
	State              string     `json:"state"`
	WorkerCount        int        `json:"worker_count"`
	SuccessCount       int        `json:"success_count"`
	FailedCount        int        `json:"failed_count"`
	ProgressPercentage int        `json:"progress_percentage"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at"`
}

// RunOutput is the full JSON representation of a deploy run, derived
// values included.
type RunOutput struct {
	ID                 string          `json:"id"`
	Kind               string          `json:"kind"`
	State              string          `json:"state"`
	IsRunning          bool            `json:"is_running"`
	Stopped            bool            `json:"stopped"`
	IsSuccessful       bool            `json:"is_successful"`
	WorkerCount        int             `json:"worker_count"`
	Progress           int             `json:"progress"`
	ProgressPercentage int             `json:"progress_percentage"`
	SuccessCount       int             `json:"success_count"`
	FailedItems        []workerOutput  `json:"failed_items"`
	Outcomes           []outcomeOutput `json:"outcomes"`
	LastError          string          `json:"last_error,omitempty"`
	StartedAt          *time.Time      `json:"started_at"`
	FinishedAt         *time.Time      `json:"finished_at"`
}

type outcomeOutput struct {
	Worker     workerOutput `json:"worker"`
	Status     string       `json:"status"`
	Detail     string       `json:"detail,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintWorkers prints workers in JSON format.
func (j *JSONPrinter) PrintWorkers(workers []model.Worker) error {
	return j.encode(mapWorkers(workers))
}

// PrintRunList prints runs in JSON format with a subset of fields.
func (j *JSONPrinter) PrintRunList(runs []model.DeployRun) error {
	items := make([]runListItem, len(runs))
	for i, r := range runs {
		items[i] = runListItem{
			ID:                 r.ID,
			Kind:               string(r.Kind),
			State:              RunState(r),
			WorkerCount:        r.WorkerCount(),
			SuccessCount:       r.SuccessCount,
			FailedCount:        len(r.FailedItems),
			ProgressPercentage: r.ProgressPercentage(),
			StartedAt:          r.StartedAt.UTC(),
			FinishedAt:         utcPtr(r.FinishedAt),
		}
	}

	return j.encode(items)
}

// PrintRun prints the detailed run in JSON format. Outcomes keep completion
// order.
func (j *JSONPrinter) PrintRun(run model.DeployRun) error {
	return j.encode(NewRunOutput(run))
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRunOutput maps a deploy run to its JSON representation.
func NewRunOutput(run model.DeployRun) RunOutput {
	out := RunOutput{
		ID:                 run.ID,
		Kind:               string(run.Kind),
		State:              RunState(run),
		IsRunning:          run.IsRunning,
		Stopped:            run.Stopped,
		IsSuccessful:       run.IsSuccessful(),
		WorkerCount:        run.WorkerCount(),
		Progress:           run.Progress(),
		ProgressPercentage: run.ProgressPercentage(),
		SuccessCount:       run.SuccessCount,
		FailedItems:        mapWorkers(run.FailedItems),
		Outcomes:           make([]outcomeOutput, 0, len(run.Outcomes)),
		LastError:          run.LastError,
		FinishedAt:         utcPtr(run.FinishedAt),
	}
	if !run.StartedAt.IsZero() {
		t := run.StartedAt.UTC()
		out.StartedAt = &t
	}
	for _, o := range run.Outcomes {
		out.Outcomes = append(out.Outcomes, outcomeOutput{
			Worker:     mapWorker(o.Worker),
			Status:     string(o.Status),
			Detail:     o.Detail,
			FinishedAt: o.FinishedAt.UTC(),
		})
	}

	return out
}

func mapWorkers(workers []model.Worker) []workerOutput {
	out := make([]workerOutput, 0, len(workers))
	for _, w := range workers {
		out = append(out, mapWorker(w))
	}
	return out
}

func mapWorker(w model.Worker) workerOutput {
	return workerOutput{
		ID:           w.ID,
		Name:         w.Name,
		Address:      w.Address,
		Organization: w.Organization,
		Region:       w.Region,
		Status:       string(w.Status),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
