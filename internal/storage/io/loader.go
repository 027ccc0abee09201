package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/wdeploy/internal/deployment/fake"
	"github.com/slok/wdeploy/internal/model"
)

// FleetYAMLRepository loads simulated fleets from YAML files.
type FleetYAMLRepository struct {
	fs fs.FS
}

// NewFleetYAMLRepository creates a new YAML fleet repository.
func NewFleetYAMLRepository(filesystem fs.FS) *FleetYAMLRepository {
	return &FleetYAMLRepository{fs: filesystem}
}

// GetFleet loads a fleet from a YAML file and returns the validated simulated workers.
func (r *FleetYAMLRepository) GetFleet(ctx context.Context, path string) ([]fake.Worker, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading fleet file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var f Fleet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	workers, err := f.toModel()
	if err != nil {
		return nil, fmt.Errorf("invalid fleet: %w", err)
	}

	return workers, nil
}

// Fleet represents the YAML structure of a fleet file.
type Fleet struct {
	// Defaults are applied to every worker that doesn't set the field.
	Defaults WorkerDefaults `yaml:"defaults"`
	Workers  []Worker       `yaml:"workers"`
}

// WorkerDefaults represents the YAML structure for the fleet defaults.
type WorkerDefaults struct {
	Organization string `yaml:"organization"`
	Region       string `yaml:"region"`
	Status       string `yaml:"status"`
	Delay        string `yaml:"delay"`
}

// Worker represents the YAML structure of a simulated worker.
type Worker struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Address      string `yaml:"address"`
	Organization string `yaml:"organization"`
	Region       string `yaml:"region"`
	Status       string `yaml:"status"`
	Behavior     string `yaml:"behavior"`
	FailAttempts int    `yaml:"fail_attempts"`
	Delay        string `yaml:"delay"`
}

func (f Fleet) toModel() ([]fake.Worker, error) {
	workers := make([]fake.Worker, 0, len(f.Workers))
	seen := map[string]bool{}

	for i, w := range f.Workers {
		if w.ID == "" {
			return nil, fmt.Errorf("worker %d: id is required", i)
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("worker %s: duplicated id", w.ID)
		}
		seen[w.ID] = true

		if w.FailAttempts < 0 {
			return nil, fmt.Errorf("worker %s: fail_attempts must not be negative, got: %d", w.ID, w.FailAttempts)
		}

		delay, err := parseDelay(firstNonEmpty(w.Delay, f.Defaults.Delay))
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", w.ID, err)
		}

		behavior := fake.Behavior(firstNonEmpty(w.Behavior, string(fake.BehaviorOK)))
		if !behavior.Valid() {
			return nil, fmt.Errorf("worker %s: unknown behavior %q (must be: ok, reject, timeout, unreachable)", w.ID, w.Behavior)
		}

		mw := model.Worker{
			ID:           w.ID,
			Name:         firstNonEmpty(w.Name, w.ID),
			Address:      w.Address,
			Organization: firstNonEmpty(w.Organization, f.Defaults.Organization),
			Region:       firstNonEmpty(w.Region, f.Defaults.Region),
			Status:       model.WorkerStatus(firstNonEmpty(w.Status, f.Defaults.Status, string(model.WorkerStatusOnline))),
		}
		if err := mw.Validate(); err != nil {
			return nil, err
		}

		workers = append(workers, fake.Worker{
			Worker:       mw,
			Behavior:     behavior,
			FailAttempts: w.FailAttempts,
			Delay:        delay,
		})
	}

	return workers, nil
}

func parseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay must not be negative, got: %s", s)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
