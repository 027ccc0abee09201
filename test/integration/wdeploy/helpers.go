package wdeploy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/slok/wdeploy/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		return fmt.Errorf("wdeploy binary path is required (WDEPLOY_INTEGRATION_BINARY)")
	}

	// go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("WDEPLOY_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("wdeploy binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "WDEPLOY_INTEGRATION"
		envBinary     = "WDEPLOY_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunWdeployCmd runs a wdeploy command with logging disabled and a specific db path.
func RunWdeployCmd(ctx context.Context, config Config, dbPath, cmdArgs string) (stdout, stderr []byte, err error) {
	env := []string{"WDEPLOY_DB_PATH=" + dbPath}
	return testutils.RunWdeploy(ctx, env, config.Binary, cmdArgs, true)
}

// Dashboard is a fake dashboard API.
type Dashboard struct {
	Server *httptest.Server

	mu       sync.Mutex
	workers  []map[string]string
	statuses map[string]int
	deploys  map[string]int
}

// NewDashboard returns a started fake dashboard API. The deploy of a worker
// answers with the configured status code, 204 when not set.
func NewDashboard(t *testing.T, workers []map[string]string, statuses map[string]int) *Dashboard {
	t.Helper()

	d := &Dashboard{
		workers:  workers,
		statuses: statuses,
		deploys:  map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /workers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.workers)
	})
	mux.HandleFunc("POST /workers/{id}/deploy", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		d.mu.Lock()
		d.deploys[id]++
		status, ok := d.statuses[id]
		d.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": fmt.Sprintf("worker %s refused", id)})
	})

	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Server.Close)

	return d
}

// Deploys returns the number of deploy requests received for a worker.
func (d *Dashboard) Deploys(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deploys[id]
}
