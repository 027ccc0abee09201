package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wdeploy/internal/app/workers"
)

type WorkersCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	filter *workerFilterFlags
	format string
}

// NewWorkersCommand returns the workers command.
func NewWorkersCommand(rootCmd *RootCommand, app *kingpin.Application) *WorkersCommand {
	c := &WorkersCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("workers", "List the deployable workers.")
	c.filter = newWorkerFilterFlags(c.Cmd)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c WorkersCommand) Name() string { return c.Cmd.FullCommand() }

func (c WorkersCommand) Run(ctx context.Context) error {
	deployer, err := c.rootCmd.DeploymentService(ctx)
	if err != nil {
		return err
	}

	svc, err := workers.NewService(workers.ServiceConfig{
		DeploymentService: deployer,
		Logger:            c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	ws, err := svc.Run(ctx, workers.Request{Filter: c.filter.filter()})
	if err != nil {
		return fmt.Errorf("could not list workers: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintWorkers(ws); err != nil {
		return fmt.Errorf("could not print workers: %w", err)
	}

	return nil
}
