package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/model"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

type Connection struct {
	*sql.DB
}

// NewConnection creates and initializes a new database connection with schema
func NewConnection(dbPath string) (*Connection, error) {
	db, err := sql.Open("sqlite", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        repo TEXT NOT NULL,
        pull_number INTEGER NOT NULL DEFAULT 0,
        branch TEXT,
        sha TEXT NOT NULL,
        conclusion TEXT NOT NULL,
        errors_found INTEGER NOT NULL DEFAULT 0,
        url_count INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS runs_repo ON runs(repo, created_at);
    CREATE TABLE IF NOT EXISTS route_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        url TEXT NOT NULL,
        improved INTEGER NOT NULL DEFAULT 0,
        passed INTEGER NOT NULL DEFAULT 0,
        warned INTEGER NOT NULL DEFAULT 0,
        failed INTEGER NOT NULL DEFAULT 0,
        FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE,
        UNIQUE(run_id, url)
    );`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Connection{db}, nil
}

// ClearAllData removes all data from the database tables
func (c *Connection) ClearAllData() error {
	_, err := c.Exec("DELETE FROM route_results; DELETE FROM runs;")
	return err
}

// RecordRun stores a completed run together with its per-URL totals.
func (c *Connection) RecordRun(ctx context.Context, run model.Run) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs(id, repo, pull_number, branch, sha, conclusion, errors_found, url_count, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Repo, run.PullNumber, run.Branch, run.SHA, run.Conclusion,
		run.ErrorsFound, run.URLCount, run.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO route_results(run_id, position, url, improved, passed, warned, failed) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range run.Routes {
		if _, err := stmt.ExecContext(ctx, run.ID, i, r.URL, r.Improved, r.Passed, r.Warned, r.Failed); err != nil {
			return fmt.Errorf("failed to insert route result %s: %w", r.URL, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first, optionally restricted to one
// repository. A limit of zero or less returns every run.
func (c *Connection) ListRuns(ctx context.Context, repo string, limit int) ([]model.Run, error) {
	query := `
        SELECT id, repo, pull_number, branch, sha, conclusion, errors_found, url_count, created_at
        FROM runs
        WHERE (? = '' OR repo = ?)
        ORDER BY created_at DESC, id`
	args := []any{repo, repo}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Routes, err = c.routeResults(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// GetRun returns a single run with its route results.
func (c *Connection) GetRun(ctx context.Context, id string) (model.Run, error) {
	row := c.QueryRowContext(ctx, `
        SELECT id, repo, pull_number, branch, sha, conclusion, errors_found, url_count, created_at
        FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrRunNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	run.Routes, err = c.routeResults(ctx, id)
	return run, err
}

// GetDistinctRepos returns every repository with recorded runs.
func (c *Connection) GetDistinctRepos(ctx context.Context) ([]string, error) {
	rows, err := c.QueryContext(ctx, "SELECT DISTINCT repo FROM runs ORDER BY repo")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var repo string
		if err := rows.Scan(&repo); err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (c *Connection) routeResults(ctx context.Context, runID string) ([]model.RouteResult, error) {
	rows, err := c.QueryContext(ctx, `
        SELECT url, improved, passed, warned, failed
        FROM route_results
        WHERE run_id = ?
        ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.RouteResult
	for rows.Next() {
		var r model.RouteResult
		if err := rows.Scan(&r.URL, &r.Improved, &r.Passed, &r.Warned, &r.Failed); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (model.Run, error) {
	var (
		run     model.Run
		branch  sql.NullString
		created string
	)
	err := s.Scan(&run.ID, &run.Repo, &run.PullNumber, &branch, &run.SHA, &run.Conclusion, &run.ErrorsFound, &run.URLCount, &created)
	if err != nil {
		return run, err
	}
	run.Branch = branch.String
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return run, fmt.Errorf("failed to parse run time %q: %w", created, err)
	}
	return run, nil
}
