package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = errors.New("history: record not found")

// Status is the outcome of one generation request.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record captures one generation request outcome.
type Record struct {
	ID        string        `json:"id"`
	Endpoint  string        `json:"endpoint"`
	Prompt    string        `json:"prompt"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Repository abstracts persistence for generation records.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records newest first, plus the total count.
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
}
