package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GenerationRow is the flat persisted form of a generation record.
type GenerationRow struct {
	ID         string
	Endpoint   string
	Prompt     string
	Width      int
	Height     int
	Status     string
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

// CreateGeneration stores a new generation record.
func (d *DB) CreateGeneration(ctx context.Context, r *GenerationRow) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO generations (id, endpoint, prompt, width, height, status, error, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Endpoint, r.Prompt, r.Width, r.Height, r.Status, r.Error, r.DurationMS, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// GetGeneration retrieves a generation record by ID.
func (d *DB) GetGeneration(ctx context.Context, id string) (*GenerationRow, error) {
	r := &GenerationRow{}
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, endpoint, prompt, width, height, status, error, duration_ms, created_at
		 FROM generations WHERE id = $1`, id,
	).Scan(&r.ID, &r.Endpoint, &r.Prompt, &r.Width, &r.Height, &r.Status, &r.Error, &r.DurationMS, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("generation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return r, nil
}

// ListGenerations returns generation records newest first, plus the total count.
func (d *DB) ListGenerations(ctx context.Context, limit, offset int) ([]*GenerationRow, int, error) {
	var total int
	if err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count generations: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, endpoint, prompt, width, height, status, error, duration_ms, created_at
		 FROM generations ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []*GenerationRow
	for rows.Next() {
		r := &GenerationRow{}
		if err := rows.Scan(&r.ID, &r.Endpoint, &r.Prompt, &r.Width, &r.Height, &r.Status, &r.Error, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan generation: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
