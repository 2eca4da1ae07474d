package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fwci/fw-updater/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for update runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	slog.Info("database_create_run", "run_id", run.ID, "state", run.State)

	query := `
		INSERT INTO runs (id, serial, product_line, current_version, bundled_version,
		                  post_version, image_path, state, outcome, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		run.ID, run.Serial, run.ProductLine, run.CurrentVersion, run.BundledVersion,
		run.PostVersion, run.ImagePath, run.State, run.Outcome, run.ErrorKind, run.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	slog.Info("database_run_created", "run_id", run.ID, "state", run.State)
	return nil
}

const selectRun = `
		SELECT id, serial, product_line, current_version, bundled_version,
		       post_version, image_path, state, outcome, error_kind, error_message,
		       created_at, updated_at
		FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	err := s.Scan(
		&run.ID, &run.Serial, &run.ProductLine, &run.CurrentVersion, &run.BundledVersion,
		&run.PostVersion, &run.ImagePath, &run.State, &run.Outcome, &run.ErrorKind, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Get retrieves a run by ID
func (r *Repository) Get(id string) (*Run, error) {
	slog.Info("database_query_run", "run_id", id)

	run, err := scanRun(r.db.QueryRow(selectRun+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		slog.Info("database_run_not_found", "run_id", id)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}

	slog.Info("database_run_found", "run_id", id, "state", run.State, "outcome", run.Outcome)
	return run, nil
}

// Update updates an existing run record
func (r *Repository) Update(run *Run) error {
	slog.Info("database_update_run", "run_id", run.ID, "state", run.State, "outcome", run.Outcome)

	query := `
		UPDATE runs
		SET serial = ?, product_line = ?, current_version = ?, bundled_version = ?,
		    post_version = ?, image_path = ?, state = ?, outcome = ?, error_kind = ?,
		    error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		run.Serial, run.ProductLine, run.CurrentVersion, run.BundledVersion,
		run.PostVersion, run.ImagePath, run.State, run.Outcome, run.ErrorKind,
		run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("database_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_run_not_found_for_update", "run_id", run.ID)
		return fmt.Errorf("run not found: id=%s", run.ID)
	}

	slog.Info("database_run_updated", "run_id", run.ID, "state", run.State)
	return nil
}

// List retrieves the most recent runs, newest first. A limit <= 0 lists all.
func (r *Repository) List(limit int) ([]*Run, error) {
	slog.Info("database_list_runs", "limit", limit)

	query := selectRun + ` ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "run_count", len(runs))
	return runs, nil
}

// DeleteBefore deletes runs created before t and returns how many were removed
func (r *Repository) DeleteBefore(t time.Time) (int64, error) {
	cutoff := FormatTimestamp(t)
	slog.Info("database_delete_runs", "before", cutoff)

	result, err := r.db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		slog.Error("database_delete_failed", "before", cutoff, "error", err)
		return 0, errors.Wrap(err, "failed to delete runs")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("database_runs_deleted", "count", n)
	return n, nil
}
