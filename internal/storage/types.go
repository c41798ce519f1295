package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Run outcomes.
const (
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, one record per line
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord summarizes one run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID         string    `json:"id"`
	App        string    `json:"app"`
	APIID      int64     `json:"api_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Complete   int       `json:"complete"`
	Chunks     int       `json:"chunks"`
	Retries    int       `json:"retries"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// Store is the persistence API used by the runner.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// ListRuns returns up to limit records, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
