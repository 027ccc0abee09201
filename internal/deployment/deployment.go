package deployment

import (
	"context"

	"github.com/slok/wdeploy/internal/model"
)

// Service is the remote deployment backend of the fleet.
type Service interface {
	// ListDeployable returns the workers that can be deployed, in a stable order.
	ListDeployable(ctx context.Context, filter model.WorkerFilter) ([]model.Worker, error)

	// DeployOne deploys a single worker. Failures are returned as *model.DeployError.
	DeployOne(ctx context.Context, id string) error
}
