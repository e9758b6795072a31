package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/handiism/broforce-map-downloader/internal/model"
)

// Status is the outcome of a map in a run.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// MapRecord is the last known state of a map.
type MapRecord struct {
	WorkshopID   string
	Title        string
	GameplayType model.GameplayType
	Difficulty   model.Difficulty
	StarRating   int
	Path         string
	Status       Status
	Error        string
	RunID        uuid.UUID
	UpdatedAt    time.Time
}

// RecordMap upserts the outcome of listing in run. An empty path keeps the
// previously stored one, so a map skipped as already present still points
// at its file.
func (c *Catalog) RecordMap(ctx context.Context, runID uuid.UUID, listing *model.MapListing, status Status, path string, cause error) error {
	var errText string
	if cause != nil {
		errText = cause.Error()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO maps (workshop_id, title, gameplay_type, difficulty, star_rating, path, status, error, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workshop_id) DO UPDATE SET
			title = excluded.title,
			gameplay_type = excluded.gameplay_type,
			difficulty = excluded.difficulty,
			star_rating = excluded.star_rating,
			path = CASE WHEN excluded.path != '' THEN excluded.path ELSE maps.path END,
			status = excluded.status,
			error = excluded.error,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		listing.WorkshopID, listing.Title, int(listing.GameplayType), int(listing.Difficulty),
		listing.StarRating, path, string(status), errText, runID.String(), formatTime(c.now()),
	)
	if err != nil {
		return fmt.Errorf("record map %s: %w", listing.WorkshopID, err)
	}
	return nil
}

// GetMap returns the stored record for workshopID.
func (c *Catalog) GetMap(ctx context.Context, workshopID string) (*MapRecord, error) {
	row := c.db.QueryRowContext(ctx, mapColumns+" WHERE workshop_id = ?", workshopID)
	rec, err := scanMap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("map %s: %w", workshopID, ErrNotFound)
	}
	return rec, err
}

// MapsForRun returns the maps whose latest outcome came from runID,
// optionally restricted to one status.
func (c *Catalog) MapsForRun(ctx context.Context, runID uuid.UUID, status Status) ([]MapRecord, error) {
	query := mapColumns + " WHERE run_id = ?"
	args := []any{runID.String()}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY workshop_id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query maps: %w", err)
	}
	defer rows.Close()

	var out []MapRecord
	for rows.Next() {
		rec, err := scanMap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

const mapColumns = `
	SELECT workshop_id, title, gameplay_type, difficulty, star_rating, path, status, error, run_id, updated_at
	FROM maps`

func scanMap(s scanner) (*MapRecord, error) {
	var (
		rec      MapRecord
		gameplay int
		diff     int
		status   string
		runID    string
		updated  string
	)
	if err := s.Scan(&rec.WorkshopID, &rec.Title, &gameplay, &diff, &rec.StarRating,
		&rec.Path, &status, &rec.Error, &runID, &updated); err != nil {
		return nil, err
	}
	rec.GameplayType = model.GameplayType(gameplay)
	rec.Difficulty = model.Difficulty(diff)
	rec.Status = Status(status)

	var err error
	if rec.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("map %s run id: %w", rec.WorkshopID, err)
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("map %s updated_at: %w", rec.WorkshopID, err)
	}
	return &rec, nil
}
