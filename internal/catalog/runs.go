package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one invocation of the download pipeline.
type Run struct {
	ID            uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time // zero while the run is in progress or was interrupted
	PagesFetched  int
	ListingsFound int
	Downloaded    int
	Skipped       int
	Failed        int
}

// Finished reports whether FinishRun was called for the run.
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// StartRun inserts a new run and returns it.
func (c *Catalog) StartRun(ctx context.Context) (*Run, error) {
	id, err := newRunID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	run := &Run{ID: id, StartedAt: c.now().UTC()}

	if _, err := c.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at) VALUES (?, ?)",
		run.ID.String(), formatTime(run.StartedAt),
	); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun stores the run's counters and marks it finished.
func (c *Catalog) FinishRun(ctx context.Context, run *Run) error {
	run.FinishedAt = c.now().UTC()
	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, pages_fetched = ?, listings_found = ?,
			downloaded = ?, skipped = ?, failed = ?
		WHERE id = ?`,
		formatTime(run.FinishedAt), run.PagesFetched, run.ListingsFound,
		run.Downloaded, run.Skipped, run.Failed,
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// History returns the most recent runs, newest first.
func (c *Catalog) History(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, pages_fetched, listings_found, downloaded, skipped, failed
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with id.
func (c *Catalog) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, pages_fetched, listings_found, downloaded, skipped, failed
		FROM runs WHERE id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run      Run
		id       string
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&id, &started, &finished, &run.PagesFetched, &run.ListingsFound,
		&run.Downloaded, &run.Skipped, &run.Failed); err != nil {
		return nil, err
	}

	var err error
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("run id %q: %w", id, err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("run %s started_at: %w", id, err)
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", id, err)
		}
	}
	return &run, nil
}
