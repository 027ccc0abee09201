package model_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/wdeploy/internal/model"
)

func workers(n int) []model.Worker {
	ws := make([]model.Worker, 0, n)
	for i := 0; i < n; i++ {
		ws = append(ws, model.Worker{ID: fmt.Sprintf("w-%02d", i)})
	}
	return ws
}

func TestDeployRunDerivedState(t *testing.T) {
	tests := map[string]struct {
		run           model.DeployRun
		expCount      int
		expProgress   int
		expPercentage int
		expSuccessful bool
		expFailures   bool
	}{
		"An empty run should have zero progress.": {
			run:           model.DeployRun{},
			expCount:      0,
			expProgress:   0,
			expPercentage: 0,
			expSuccessful: false,
		},

		"A partially finished run should round the percentage.": {
			run: model.DeployRun{
				Items:        workers(3),
				SuccessCount: 1,
			},
			expCount:      3,
			expProgress:   1,
			expPercentage: 33,
		},

		"A finished run with failures should be successful (complete).": {
			run: model.DeployRun{
				Items:        workers(25),
				SuccessCount: 20,
				FailedItems:  workers(5),
			},
			expCount:      25,
			expProgress:   25,
			expPercentage: 100,
			expSuccessful: true,
			expFailures:   true,
		},

		"A run where everything failed should be successful (complete).": {
			run: model.DeployRun{
				Items:       workers(2),
				FailedItems: workers(2),
			},
			expCount:      2,
			expProgress:   2,
			expPercentage: 100,
			expSuccessful: true,
			expFailures:   true,
		},

		"A large run one item short should not reach 100.": {
			run: model.DeployRun{
				Items:        workers(1000),
				SuccessCount: 999,
			},
			expCount:      1000,
			expProgress:   999,
			expPercentage: 99,
			expSuccessful: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			assert.Equal(test.expCount, test.run.WorkerCount())
			assert.Equal(test.expProgress, test.run.Progress())
			assert.Equal(test.expPercentage, test.run.ProgressPercentage())
			assert.Equal(test.expSuccessful, test.run.IsSuccessful())
			assert.Equal(test.expFailures, test.run.HasFailures())
		})
	}
}

func TestDeployRunNotOK(t *testing.T) {
	items := workers(4)
	run := model.DeployRun{
		Items: items,
		Outcomes: []model.DeployOutcome{
			{Worker: items[2], Status: model.OutcomeStatusTimeout},
			{Worker: items[0], Status: model.OutcomeStatusOK},
			{Worker: items[1], Status: model.OutcomeStatusError},
		},
	}

	// items[3] never got an outcome (stopped run).
	assert.Equal(t, []model.Worker{items[1], items[2], items[3]}, run.NotOK())
}

func TestDeployRunCopy(t *testing.T) {
	run := model.DeployRun{
		Items:    workers(2),
		Outcomes: []model.DeployOutcome{{Worker: model.Worker{ID: "w-00"}, Status: model.OutcomeStatusOK}},
	}

	c := run.Copy()
	c.Items[0].ID = "changed"
	c.Outcomes[0].Status = model.OutcomeStatusError

	assert.Equal(t, "w-00", run.Items[0].ID)
	assert.Equal(t, model.OutcomeStatusOK, run.Outcomes[0].Status)
}
