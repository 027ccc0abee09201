package workers_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/wdeploy/internal/app/workers"
	"github.com/slok/wdeploy/internal/deployment/deploymentmock"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
)

func TestNewService(t *testing.T) {
	_, err := workers.NewService(workers.ServiceConfig{})
	assert.Error(t, err)

	svc, err := workers.NewService(workers.ServiceConfig{DeploymentService: &deploymentmock.MockService{}})
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_Run(t *testing.T) {
	fleet := []model.Worker{
		{ID: "w1", Name: "gpu-01", Organization: "acme", Status: model.WorkerStatusOnline},
		{ID: "w2", Name: "gpu-02", Organization: "acme", Status: model.WorkerStatusOnline},
	}

	tests := map[string]struct {
		mock      func(m *deploymentmock.MockService)
		req       workers.Request
		expResult []model.Worker
		expErr    bool
	}{
		"list deployable workers with filter": {
			mock: func(m *deploymentmock.MockService) {
				m.On("ListDeployable", mock.Anything, model.WorkerFilter{Organization: "acme"}).Once().Return(fleet, nil)
			},
			req:       workers.Request{Filter: model.WorkerFilter{Organization: "acme"}},
			expResult: fleet,
		},
		"invalid filter should fail": {
			mock:   func(m *deploymentmock.MockService) {},
			req:    workers.Request{Filter: model.WorkerFilter{Status: "exploded"}},
			expErr: true,
		},
		"backend error should propagate": {
			mock: func(m *deploymentmock.MockService) {
				m.On("ListDeployable", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("api down"))
			},
			req:    workers.Request{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mSvc := &deploymentmock.MockService{}
			test.mock(mSvc)

			svc, err := workers.NewService(workers.ServiceConfig{
				DeploymentService: mSvc,
				Logger:            log.Noop,
			})
			require.NoError(err)

			result, err := svc.Run(context.Background(), test.req)

			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.Equal(test.expResult, result)
			}

			mSvc.AssertExpectations(t)
		})
	}
}
