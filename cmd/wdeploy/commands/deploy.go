package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wdeploy/internal/app/deploy"
	"github.com/slok/wdeploy/internal/printer"
	"github.com/slok/wdeploy/internal/storage"
	"github.com/slok/wdeploy/internal/storage/sqlite"
)

type DeployCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	filter     *workerFilterFlags
	retries    int
	format     string
	noProgress bool
	noHistory  bool
}

// NewDeployCommand returns the deploy command.
func NewDeployCommand(rootCmd *RootCommand, app *kingpin.Application) *DeployCommand {
	c := &DeployCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("deploy", "Deploy all the deployable workers in batches.")
	c.filter = newWorkerFilterFlags(c.Cmd)
	c.Cmd.Flag("retries", "Times the not deployed workers are retried after the first run.").Default("0").IntVar(&c.retries)
	c.Cmd.Flag("no-progress", "Disable the live progress line.").BoolVar(&c.noProgress)
	c.Cmd.Flag("no-history", "Don't store the runs in the history database.").BoolVar(&c.noHistory)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c DeployCommand) Name() string { return c.Cmd.FullCommand() }

func (c DeployCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.retries < 0 {
		return fmt.Errorf("retries can't be negative")
	}

	svc, err := c.rootCmd.DeploymentService(ctx)
	if err != nil {
		return err
	}

	var repo storage.RunRepository
	if !c.noHistory {
		sqliteRepo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: c.rootCmd.DBPath,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("could not create repository: %w", err)
		}
		defer sqliteRepo.Close()
		repo = sqliteRepo
	}

	coord, err := deploy.NewCoordinator(deploy.CoordinatorConfig{
		DeploymentService: svc,
		Repository:        repo,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("could not create coordinator: %w", err)
	}

	withProgress := func(fn func() error) error {
		if c.noProgress {
			return fn()
		}
		progress := printer.NewProgressPrinter(c.rootCmd.Stderr, 0, coord.State)
		progress.Start()
		defer progress.Stop()
		return fn()
	}

	err = withProgress(func() error { return coord.DeployAll(ctx, c.filter.filter()) })
	if err != nil {
		return fmt.Errorf("could not deploy workers: %w", err)
	}

	for i := 0; i < c.retries; i++ {
		pending := len(coord.State().NotOK())
		if pending == 0 || ctx.Err() != nil {
			break
		}

		logger.Infof("Retrying %d workers (%d/%d)", pending, i+1, c.retries)
		err := withProgress(func() error { return coord.RetryFailed(ctx) })
		if err != nil {
			return fmt.Errorf("could not retry workers: %w", err)
		}
	}

	run := coord.State()
	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintRun(run); err != nil {
		return fmt.Errorf("could not print run: %w", err)
	}

	if pending := len(run.NotOK()); pending > 0 {
		return fmt.Errorf("%d of %d workers were not deployed", pending, run.WorkerCount())
	}

	return nil
}
