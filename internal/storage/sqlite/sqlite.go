package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/storage"
	"github.com/slok/wdeploy/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.RunRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository, applying the schema migrations.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(migrations.MigratorConfig{DB: db, Logger: cfg.Logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}
	version, err := migrator.Version(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not check schema: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s (schema version %d)", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// SaveRun stores a run with its items and outcomes, replacing any previous version.
func (r *Repository) SaveRun(ctx context.Context, run model.DeployRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required: %w", model.ErrNotValid)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit.

	for _, q := range []string{
		`DELETE FROM run_outcomes WHERE run_id = ?`,
		`DELETE FROM run_items WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, run.ID); err != nil {
			return fmt.Errorf("could not clear previous run: %w", err)
		}
	}

	var finishedAt *int64
	if run.FinishedAt != nil {
		u := run.FinishedAt.UnixNano()
		finishedAt = &u
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, stopped, last_error) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt.UnixNano(), finishedAt, run.Stopped, run.LastError,
	)
	if err != nil {
		return fmt.Errorf("could not insert run: %w", err)
	}

	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_items (run_id, position, worker_id, name, address, organization, region, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer itemStmt.Close()

	for i, w := range run.Items {
		_, err := itemStmt.ExecContext(ctx, run.ID, i, w.ID, w.Name, w.Address, w.Organization, w.Region, w.Status)
		if err != nil {
			return fmt.Errorf("could not insert run item: %w", err)
		}
	}

	outcomeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_outcomes (run_id, sequence, worker_id, status, detail, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer outcomeStmt.Close()

	for i, o := range run.Outcomes {
		_, err := outcomeStmt.ExecContext(ctx, run.ID, i, o.Worker.ID, o.Status, o.Detail, o.FinishedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("could not insert run outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Saved run in repository: %s (%d items, %d outcomes)", run.ID, len(run.Items), len(run.Outcomes))
	return nil
}

// GetRun retrieves a run by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.DeployRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, kind, started_at, finished_at, stopped, last_error
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query run: %w", err)
	}

	if err := r.loadDetails(ctx, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns returns the runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, opts storage.ListRunsOptions) ([]model.DeployRun, error) {
	query := `
		SELECT id, kind, started_at, finished_at, stopped, last_error
		FROM runs
		ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.DeployRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	for i := range runs {
		if err := r.loadDetails(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

// loadDetails fills the items and outcomes of a run, deriving the success
// count and failed items from the outcomes.
func (r *Repository) loadDetails(ctx context.Context, run *model.DeployRun) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT worker_id, name, address, organization, region, status
		FROM run_items
		WHERE run_id = ?
		ORDER BY position ASC
	`, run.ID)
	if err != nil {
		return fmt.Errorf("could not query run items: %w", err)
	}
	defer rows.Close()

	workers := map[string]model.Worker{}
	for rows.Next() {
		var w model.Worker
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.Organization, &w.Region, &w.Status); err != nil {
			return fmt.Errorf("could not scan run item: %w", err)
		}
		run.Items = append(run.Items, w)
		workers[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating run items: %w", err)
	}

	orows, err := r.db.QueryContext(ctx, `
		SELECT worker_id, status, detail, finished_at
		FROM run_outcomes
		WHERE run_id = ?
		ORDER BY sequence ASC
	`, run.ID)
	if err != nil {
		return fmt.Errorf("could not query run outcomes: %w", err)
	}
	defer orows.Close()

	for orows.Next() {
		var workerID string
		var finishedAt int64
		var o model.DeployOutcome
		if err := orows.Scan(&workerID, &o.Status, &o.Detail, &finishedAt); err != nil {
			return fmt.Errorf("could not scan run outcome: %w", err)
		}
		w, ok := workers[workerID]
		if !ok {
			w = model.Worker{ID: workerID}
		}
		o.Worker = w
		o.FinishedAt = time.Unix(0, finishedAt).UTC()

		run.Outcomes = append(run.Outcomes, o)
		if o.Status == model.OutcomeStatusOK {
			run.SuccessCount++
		} else {
			run.FailedItems = append(run.FailedItems, w)
		}
	}
	if err := orows.Err(); err != nil {
		return fmt.Errorf("error iterating run outcomes: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (model.DeployRun, error) {
	var run model.DeployRun
	var startedAt int64
	var finishedAt sql.NullInt64

	if err := s.Scan(&run.ID, &run.Kind, &startedAt, &finishedAt, &run.Stopped, &run.LastError); err != nil {
		return model.DeployRun{}, err
	}

	run.StartedAt = time.Unix(0, startedAt).UTC()
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64).UTC()
		run.FinishedAt = &t
	}

	return run, nil
}
