package model

import "fmt"

// WorkerStatus represents the fleet status of a worker as reported by the API.
type WorkerStatus string

const (
	// WorkerStatusOnline indicates the worker is reachable and serving.
	WorkerStatusOnline WorkerStatus = "online"
	// WorkerStatusOffline indicates the worker is not reporting.
	WorkerStatusOffline WorkerStatus = "offline"
	// WorkerStatusMaintenance indicates the worker was drained by an operator.
	WorkerStatusMaintenance WorkerStatus = "maintenance"
)

// Valid returns true if the status is a known worker status.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusOnline, WorkerStatusOffline, WorkerStatusMaintenance:
		return true
	}
	return false
}

// Worker is a deployable unit of the fleet. Apart from the ID, all the fields
// are only used for display.
type Worker struct {
	ID           string
	Name         string
	Address      string
	Organization string
	Region       string
	Status       WorkerStatus
}

// Validate validates the worker.
func (w Worker) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("worker id is required: %w", ErrNotValid)
	}
	if w.Status != "" && !w.Status.Valid() {
		return fmt.Errorf("worker %s has unknown status %q: %w", w.ID, w.Status, ErrNotValid)
	}
	return nil
}

// WorkerFilter selects the deployable workers. Empty fields match everything.
type WorkerFilter struct {
	Status       WorkerStatus
	Organization string
	Region       string
}

// Validate validates the filter.
func (f WorkerFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("unknown worker status %q (must be: online, offline, maintenance): %w", f.Status, ErrNotValid)
	}
	return nil
}

// Matches returns true if the worker satisfies the filter.
func (f WorkerFilter) Matches(w Worker) bool {
	if f.Status != "" && f.Status != w.Status {
		return false
	}
	if f.Organization != "" && f.Organization != w.Organization {
		return false
	}
	if f.Region != "" && f.Region != w.Region {
		return false
	}
	return true
}
