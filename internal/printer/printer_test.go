package printer_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/printer"
)

func runFixture() model.DeployRun {
	startedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	finishedAt := startedAt.Add(3 * time.Second)
	w1 := model.Worker{ID: "w1", Name: "worker-1", Status: model.WorkerStatusOnline}
	w2 := model.Worker{ID: "w2", Name: "worker-2", Status: model.WorkerStatusOnline}
	w3 := model.Worker{ID: "w3", Name: "worker-3", Status: model.WorkerStatusOnline}

	return model.DeployRun{
		ID:    "01H2QWERTYASDFGZXCVBNM3KJH",
		Kind:  model.RunKindDeployAll,
		Items: []model.Worker{w1, w2, w3},
		Outcomes: []model.DeployOutcome{
			{Worker: w2, Status: model.OutcomeStatusOK, FinishedAt: startedAt.Add(time.Second)},
			{Worker: w1, Status: model.OutcomeStatusTimeout, Detail: "worker did not answer in time", FinishedAt: startedAt.Add(2 * time.Second)},
			{Worker: w3, Status: model.OutcomeStatusOK, FinishedAt: finishedAt},
		},
		SuccessCount: 2,
		FailedItems:  []model.Worker{w1},
		StartedAt:    startedAt,
		FinishedAt:   &finishedAt,
	}
}

func TestTablePrinterPrintRun(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintRun(runFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "State:      completed with failures")
	assert.Contains(t, out, "Progress:   100%")
	assert.Contains(t, out, "Duration:   3s")

	// Most recent outcome first.
	i3 := strings.Index(out, "worker-3")
	i1 := strings.Index(out, "worker-1")
	i2 := strings.Index(out, "worker-2")
	require.True(t, i3 > 0 && i1 > 0 && i2 > 0)
	assert.Less(t, i3, i1)
	assert.Less(t, i1, i2)
	assert.Contains(t, out, "worker did not answer in time")
}

func TestTablePrinterPrintRunList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	running := model.DeployRun{ID: "r2", Kind: model.RunKindRetryFailed, IsRunning: true, StartedAt: time.Now()}
	err := p.PrintRunList([]model.DeployRun{running, runFixture()})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "retry-failed")
	assert.Contains(t, lines[1], "running")
	assert.Contains(t, lines[2], "completed with failures")
}

func TestTablePrinterPrintWorkers(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintWorkers([]model.Worker{
		{ID: "w1", Name: "worker-1", Status: model.WorkerStatusOnline, Region: "eu-west"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ORGANIZATION")
	assert.Contains(t, out, "eu-west")
	assert.Contains(t, out, "worker-1")
}

func TestJSONPrinterPrintRun(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintRun(runFixture())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "deploy-all", got["kind"])
	assert.Equal(t, true, got["is_successful"])
	assert.EqualValues(t, 3, got["worker_count"])
	assert.EqualValues(t, 3, got["progress"])
	assert.EqualValues(t, 100, got["progress_percentage"])

	outcomes, ok := got["outcomes"].([]any)
	require.True(t, ok)
	require.Len(t, outcomes, 3)
	first := outcomes[0].(map[string]any)
	assert.Equal(t, "OK", first["status"])
	assert.Equal(t, "w2", first["worker"].(map[string]any)["id"])
}

func TestJSONPrinterPrintRunEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintRun(model.DeployRun{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"outcomes": []`)
	assert.Contains(t, out, `"failed_items": []`)
	assert.Contains(t, out, `"started_at": null`)
	assert.Contains(t, out, `"state": "idle"`)
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}

func TestJSONPrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"ok"}`, buf.String())
}

func TestRunState(t *testing.T) {
	now := time.Now()
	tests := map[string]struct {
		run      model.DeployRun
		expected string
	}{
		"Never started runs are idle.": {
			run:      model.DeployRun{},
			expected: "idle",
		},
		"Running runs.": {
			run:      model.DeployRun{IsRunning: true},
			expected: "running",
		},
		"Listing failures.": {
			run:      model.DeployRun{LastError: "boom", FinishedAt: &now},
			expected: "failed",
		},
		"Stopped runs.": {
			run:      model.DeployRun{Stopped: true, FinishedAt: &now},
			expected: "stopped",
		},
		"Completed runs.": {
			run:      model.DeployRun{FinishedAt: &now},
			expected: "completed",
		},
		"Completed runs with failures.": {
			run:      runFixture(),
			expected: "completed with failures",
		},
		"Completed runs with workers left without outcome.": {
			run: model.DeployRun{
				Items:        []model.Worker{{ID: "w1"}, {ID: "w2"}},
				Outcomes:     []model.DeployOutcome{{Worker: model.Worker{ID: "w1"}, Status: model.OutcomeStatusOK}},
				SuccessCount: 1,
				FinishedAt:   &now,
			},
			expected: "completed with failures",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.RunState(test.run))
		})
	}
}

func TestRenderProgress(t *testing.T) {
	tests := map[string]struct {
		run      model.DeployRun
		expected string
	}{
		"Empty run.": {
			run:      model.DeployRun{},
			expected: "  [" + strings.Repeat(" ", 40) + "]   0% 0/0 ok=0 failed=0",
		},
		"Half way.": {
			run: model.DeployRun{
				Items:        make([]model.Worker, 4),
				SuccessCount: 1,
				FailedItems:  make([]model.Worker, 1),
			},
			expected: "  [" + strings.Repeat("=", 20) + strings.Repeat(" ", 20) + "]  50% 2/4 ok=1 failed=1",
		},
		"Stopped.": {
			run: model.DeployRun{
				Items:        make([]model.Worker, 4),
				SuccessCount: 1,
				Stopped:      true,
			},
			expected: "  [" + strings.Repeat("=", 10) + strings.Repeat(" ", 30) + "]  25% 1/4 ok=1 failed=0 (stopped)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.RenderProgress(test.run))
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgressPrinter(t *testing.T) {
	var mu sync.Mutex
	run := model.DeployRun{Items: make([]model.Worker, 2), IsRunning: true}
	state := func() model.DeployRun {
		mu.Lock()
		defer mu.Unlock()
		return run.Copy()
	}

	var out syncBuffer
	p := printer.NewProgressPrinter(&out, time.Millisecond, state)
	p.Start()
	p.Start()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "0/2")
	}, time.Second, time.Millisecond)

	mu.Lock()
	run.SuccessCount = 2
	run.IsRunning = false
	mu.Unlock()

	p.Stop()
	p.Stop()

	got := out.String()
	assert.Contains(t, got, "\r\033[2K")
	assert.True(t, strings.HasSuffix(got, "100% 2/2 ok=2 failed=0\n"))
}
