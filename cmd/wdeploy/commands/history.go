package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wdeploy/internal/app/runlist"
	"github.com/slok/wdeploy/internal/app/runstatus"
	"github.com/slok/wdeploy/internal/storage/sqlite"
)

// NewHistoryCommand returns the parent command of the run history subcommands.
func NewHistoryCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("history", "Inspect the deploy run history.")
}

type HistoryListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	limit      int
	onlyFailed bool
	format     string
}

// NewHistoryListCommand returns the history list command.
func NewHistoryListCommand(rootCmd *RootCommand, historyCmd *kingpin.CmdClause) *HistoryListCommand {
	c := &HistoryListCommand{rootCmd: rootCmd}

	c.Cmd = historyCmd.Command("list", "List the deploy runs, newest first.")
	c.Cmd.Flag("limit", "Max number of runs, 0 lists all.").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("failed", "Only runs with failures.").BoolVar(&c.onlyFailed)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c HistoryListCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	svc, err := runlist.NewService(runlist.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	runs, err := svc.Run(ctx, runlist.Request{
		Limit:      c.limit,
		OnlyFailed: c.onlyFailed,
	})
	if err != nil {
		return fmt.Errorf("could not list runs: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintRunList(runs); err != nil {
		return fmt.Errorf("could not print runs: %w", err)
	}

	return nil
}

type HistoryShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewHistoryShowCommand returns the history show command.
func NewHistoryShowCommand(rootCmd *RootCommand, historyCmd *kingpin.CmdClause) *HistoryShowCommand {
	c := &HistoryShowCommand{rootCmd: rootCmd}

	c.Cmd = historyCmd.Command("show", "Show a deploy run with its outcome log.")
	c.Cmd.Arg("id", "Run ID.").Default(runstatus.LatestRunID).StringVar(&c.id)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c HistoryShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryShowCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	svc, err := runstatus.NewService(runstatus.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	run, err := svc.Run(ctx, runstatus.Request{ID: c.id})
	if err != nil {
		return fmt.Errorf("could not get run: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintRun(*run); err != nil {
		return fmt.Errorf("could not print run: %w", err)
	}

	return nil
}
