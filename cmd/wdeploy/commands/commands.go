package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/wdeploy/internal/conventions"
	"github.com/slok/wdeploy/internal/deployment"
	"github.com/slok/wdeploy/internal/deployment/fake"
	"github.com/slok/wdeploy/internal/deployment/remote"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/printer"
	storageio "github.com/slok/wdeploy/internal/storage/io"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string
	APIURL     string
	APIToken   string
	APITimeout time.Duration
	FleetFile  string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("db-path", "Path to the SQLite run history database file.").Default(conventions.DBPath(homedir.HomeDir())).StringVar(&c.DBPath)
	app.Flag("api-url", "Dashboard API base URL used to list and deploy workers.").StringVar(&c.APIURL)
	app.Flag("api-token", "Dashboard API bearer token.").StringVar(&c.APIToken)
	app.Flag("api-timeout", "Dashboard API per request timeout.").Default(conventions.DefaultAPITimeout).DurationVar(&c.APITimeout)
	app.Flag("fleet-file", "YAML file with a simulated fleet, replaces the dashboard API.").StringVar(&c.FleetFile)

	return c
}

// DeploymentService returns the deployment backend selected by the global flags.
func (c *RootCommand) DeploymentService(ctx context.Context) (deployment.Service, error) {
	switch {
	case c.FleetFile != "":
		path, err := filepath.Abs(c.FleetFile)
		if err != nil {
			return nil, fmt.Errorf("could not resolve fleet file path: %w", err)
		}

		workers, err := storageio.NewFleetYAMLRepository(os.DirFS("/")).GetFleet(ctx, path[1:])
		if err != nil {
			return nil, fmt.Errorf("could not load fleet file: %w", err)
		}

		svc, err := fake.NewService(fake.ServiceConfig{
			Workers: workers,
			Logger:  c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create fake deployment service: %w", err)
		}
		c.Logger.Infof("Using simulated fleet from %s (%d workers)", c.FleetFile, len(workers))
		return svc, nil
	case c.APIURL != "":
		svc, err := remote.NewService(remote.ServiceConfig{
			BaseURL: c.APIURL,
			Token:   c.APIToken,
			Timeout: c.APITimeout,
			Logger:  c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create remote deployment service: %w", err)
		}
		return svc, nil
	}

	return nil, fmt.Errorf("a deployment backend is required, use --api-url or --fleet-file: %w", model.ErrNotValid)
}

func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case formatJSON:
		return printer.NewJSONPrinter(w)
	default:
		return printer.NewTablePrinter(w)
	}
}

func formatFlag(cmd *kingpin.CmdClause, format *string) {
	cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(format, formatTable, formatJSON)
}

// workerFilterFlags are the flags shared by the commands that select workers.
type workerFilterFlags struct {
	status       string
	organization string
	region       string
}

func newWorkerFilterFlags(cmd *kingpin.CmdClause) *workerFilterFlags {
	f := &workerFilterFlags{}
	cmd.Flag("status", "Only workers with this status (online, offline, maintenance).").StringVar(&f.status)
	cmd.Flag("organization", "Only workers of this organization.").StringVar(&f.organization)
	cmd.Flag("region", "Only workers of this region.").StringVar(&f.region)
	return f
}

func (f workerFilterFlags) filter() model.WorkerFilter {
	return model.WorkerFilter{
		Status:       model.WorkerStatus(f.status),
		Organization: f.organization,
		Region:       f.region,
	}
}
