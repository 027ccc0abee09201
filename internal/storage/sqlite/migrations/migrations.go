package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/wdeploy/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// MigratorConfig is the configuration for the run history migrator.
type MigratorConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *MigratorConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLiteMigrator"})
	return nil
}

// Migrator applies the embedded run history schema.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator creates a new migrator.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Migrator{
		db:     cfg.DB,
		logger: cfg.Logger,
	}, nil
}

// Up applies all the pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "apply", (*migrate.Migrate).Up)
}

// Down reverts all the migrations.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "revert", (*migrate.Migrate).Down)
}

// Version returns the current schema version, zero when no migration was applied.
func (m *Migrator) Version(ctx context.Context) (uint, error) {
	inst, closeFn, err := m.instance()
	defer closeFn()
	if err != nil {
		return 0, err
	}

	v, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not get schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}

	return v, nil
}

func (m *Migrator) run(ctx context.Context, action string, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	inst, closeFn, err := m.instance()
	defer closeFn()
	if err != nil {
		return err
	}

	if err := fn(inst); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not %s migrations: %w", action, err)
	}

	m.logger.Debugf("Migrations %s done", action)
	return nil
}

func (m *Migrator) instance() (instance *migrate.Migrate, closeFn func(), err error) {
	closeFn = func() {}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return nil, closeFn, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, closeFn, fmt.Errorf("could not create migrations source: %w", err)
	}
	closeFn = func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("could not close migrations source: %s", err)
		}
	}

	instance, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, closeFn, fmt.Errorf("could not create migration instance: %w", err)
	}

	return instance, closeFn, nil
}
