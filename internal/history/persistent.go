package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/db"
)

// PersistentRepository wraps a MemoryRepository with a PostgreSQL backend.
// Writes go to both stores (DB failure is logged but non-fatal); reads try
// memory first, falling back to the database.
type PersistentRepository struct {
	mem *MemoryRepository
	db  *db.DB
}

func NewPersistentRepository(mem *MemoryRepository, database *db.DB) *PersistentRepository {
	return &PersistentRepository{mem: mem, db: database}
}

func (r *PersistentRepository) Create(ctx context.Context, record *Record) error {
	_ = r.mem.Create(ctx, record)
	if err := r.db.CreateGeneration(ctx, toRow(record)); err != nil {
		slog.Warn("db create generation failed, in-memory only", "err", err)
	}
	return nil
}

func (r *PersistentRepository) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := r.mem.Get(ctx, id)
	if err == nil {
		return rec, nil
	}

	row, dbErr := r.db.GetGeneration(ctx, id)
	if dbErr != nil {
		return nil, err // keep the original ErrNotFound
	}

	rec = fromRow(row)
	_ = r.mem.Create(ctx, rec)
	return rec, nil
}

func (r *PersistentRepository) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	rows, total, err := r.db.ListGenerations(ctx, limit, offset)
	if err == nil {
		recs := make([]*Record, len(rows))
		for i, row := range rows {
			recs[i] = fromRow(row)
		}
		return recs, total, nil
	}
	slog.Warn("db list generations failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx, limit, offset)
}

func toRow(rec *Record) *db.GenerationRow {
	return &db.GenerationRow{
		ID:         rec.ID,
		Endpoint:   rec.Endpoint,
		Prompt:     rec.Prompt,
		Width:      rec.Width,
		Height:     rec.Height,
		Status:     string(rec.Status),
		Error:      rec.Error,
		DurationMS: rec.Duration.Milliseconds(),
		CreatedAt:  rec.CreatedAt,
	}
}

func fromRow(row *db.GenerationRow) *Record {
	return &Record{
		ID:        row.ID,
		Endpoint:  row.Endpoint,
		Prompt:    row.Prompt,
		Width:     row.Width,
		Height:    row.Height,
		Status:    Status(row.Status),
		Error:     row.Error,
		Duration:  time.Duration(row.DurationMS) * time.Millisecond,
		CreatedAt: row.CreatedAt,
	}
}
