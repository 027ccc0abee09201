package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wdeploy/internal/api"
	"github.com/slok/wdeploy/internal/app/deploy"
	"github.com/slok/wdeploy/internal/app/runlist"
	"github.com/slok/wdeploy/internal/app/runstatus"
	"github.com/slok/wdeploy/internal/conventions"
	"github.com/slok/wdeploy/internal/storage/sqlite"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr string
	authToken  string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the deploy state and actions over HTTP.")
	c.Cmd.Flag("listen-address", "Address the HTTP API listens on.").Default(conventions.DefaultListenAddr).StringVar(&c.listenAddr)
	c.Cmd.Flag("auth-token", "Bearer token required by the HTTP API, empty disables auth.").StringVar(&c.authToken)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	svc, err := c.rootCmd.DeploymentService(ctx)
	if err != nil {
		return err
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	coord, err := deploy.NewCoordinator(deploy.CoordinatorConfig{
		DeploymentService: svc,
		Repository:        repo,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("could not create coordinator: %w", err)
	}

	lister, err := runlist.NewService(runlist.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create run list service: %w", err)
	}
	getter, err := runstatus.NewService(runstatus.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create run status service: %w", err)
	}

	srv, err := api.NewServer(api.ServerConfig{
		ListenAddr:  c.listenAddr,
		Coordinator: coord,
		RunLister:   lister,
		RunGetter:   getter,
		Token:       c.authToken,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API server: %w", err)
	}

	return srv.Run(ctx)
}
