package printer

import "github.com/slok/wdeploy/internal/model"

// Printer knows how to print deployment information in different formats.
type Printer interface {
	PrintWorkers(workers []model.Worker) error
	PrintRunList(runs []model.DeployRun) error
	PrintRun(run model.DeployRun) error
	PrintMessage(msg string) error
}
