// Package history keeps a queryable SQLite index of finalized runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/types"
)

// Entry is one indexed run.
type Entry struct {
	ID          string
	Name        string
	Category    string
	Environment string
	Target      string
	Status      recorder.RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMs  int64
	Steps       int
	FailedSteps int
	APICalls    int
	Errors      int
	Artifact    string
}

// Filter narrows List. Zero values match everything; Limit <= 0 means no limit.
type Filter struct {
	Status      recorder.RunStatus
	Environment string
	Limit       int
}

// Index is a SQLite-backed run index. It implements recorder.Sink and is safe
// for concurrent use.
type Index struct {
	mu sync.Mutex
	db *sql.DB
}

var _ recorder.Sink = (*Index)(nil)

// Open opens (creating if needed) the index at path. Use ":memory:" for a
// throwaway index.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure history database: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return idx, nil
}

func (x *Index) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			environment TEXT NOT NULL DEFAULT '',
			target TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			steps INTEGER NOT NULL DEFAULT 0,
			failed_steps INTEGER NOT NULL DEFAULT 0,
			api_calls INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			artifact TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, started_at)`,
	}

	for _, m := range migrations {
		if _, err := x.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Write upserts the run.
func (x *Index) Write(ctx context.Context, run recorder.RunContext, artifactPath string) error {
	meta := run.Metadata
	var completedAt sql.NullInt64
	if meta.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: meta.CompletedAt.UnixMilli(), Valid: true}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, category, environment, target, status, started_at,
			completed_at, duration_ms, steps, failed_steps, api_calls, errors, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			environment = excluded.environment,
			target = excluded.target,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			steps = excluded.steps,
			failed_steps = excluded.failed_steps,
			api_calls = excluded.api_calls,
			errors = excluded.errors,
			artifact = excluded.artifact`,
		meta.ID, meta.Name, meta.Category, meta.Environment, meta.Target, string(meta.Status),
		meta.StartedAt.UnixMilli(), completedAt, run.TotalDurationMs,
		len(run.Steps), len(run.FailedSteps()), len(run.ExternalCalls), len(run.Errors), artifactPath)
	if err != nil {
		return fmt.Errorf("index run %s: %w", meta.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, name, category, environment, target, status, started_at,
	completed_at, duration_ms, steps, failed_steps, api_calls, errors, artifact FROM runs`

// List returns matching runs, newest first.
func (x *Index) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Environment != "" {
		where = append(where, "environment = ?")
		args = append(args, f.Environment)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one run by ID.
func (x *Index) Get(ctx context.Context, id string) (Entry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	row := x.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e           Entry
		status      string
		startedAt   int64
		completedAt sql.NullInt64
	)
	err := s.Scan(&e.ID, &e.Name, &e.Category, &e.Environment, &e.Target, &status, &startedAt,
		&completedAt, &e.DurationMs, &e.Steps, &e.FailedSteps, &e.APICalls, &e.Errors, &e.Artifact)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}

	e.Status = recorder.RunStatus(status)
	e.StartedAt = time.UnixMilli(startedAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		e.CompletedAt = &t
	}
	return e, nil
}
