// Package catalog records every pipeline run: which model ran, where its
// store was written and how it ended. Stores remain the source of truth for
// results; the catalog only indexes them.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunRecord is one catalog row.
type RunRecord struct {
	ID          uuid.UUID  `json:"run_id"`
	ModelID     string     `json:"model_id"`
	StoreKey    string     `json:"store_key"`
	Status      Status     `json:"status"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	NumSamples  int        `json:"num_samples"`
	StoredCells int        `json:"stored_cells"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Outcome is what Finish records about a run's end.
type Outcome struct {
	Status      Status
	ErrorKind   string
	Error       string
	NumSamples  int
	StoredCells int
	FinishedAt  time.Time
}

// Catalog persists run records.
type Catalog interface {
	Begin(ctx context.Context, rec RunRecord) error
	Finish(ctx context.Context, id uuid.UUID, out Outcome) error
	Get(ctx context.Context, id uuid.UUID) (RunRecord, error)
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config selects a catalog backend.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate checks the driver name.
func (c Config) Validate() error {
	switch c.Driver {
	case "", DriverSQLite, DriverPostgres, DriverNone:
		return nil
	default:
		return fmt.Errorf("unknown catalog driver %q; valid: sqlite, postgres, none", c.Driver)
	}
}

// Open constructs the configured catalog. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverNone:
		return Nop{}, nil
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return OpenSQLite(ctx, cfg.DSN)
	}
}

// Nop discards records; used when the catalog is disabled.
type Nop struct{}

func (Nop) Begin(context.Context, RunRecord) error           { return nil }
func (Nop) Finish(context.Context, uuid.UUID, Outcome) error { return nil }
func (Nop) Close() error                                     { return nil }

func (Nop) Get(_ context.Context, id uuid.UUID) (RunRecord, error) {
	return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (Nop) List(context.Context, int) ([]RunRecord, error) { return nil, nil }
