package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("catalog: run not found")

const createRunsTable = `CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	model_id     TEXT NOT NULL,
	store_key    TEXT NOT NULL,
	status       TEXT NOT NULL,
	error_kind   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	num_samples  BIGINT NOT NULL DEFAULT 0,
	stored_cells BIGINT NOT NULL DEFAULT 0,
	started_at   BIGINT NOT NULL,
	finished_at  BIGINT
)`

const createStartedIndex = `CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at)`

// sqlCatalog implements Catalog over database/sql. Queries are written
// with '?' placeholders and rebound for dialects that number them.
type sqlCatalog struct {
	db       *sql.DB
	numbered bool
}

func newSQLCatalog(ctx context.Context, db *sql.DB, numbered bool) (*sqlCatalog, error) {
	for _, ddl := range []string{createRunsTable, createStartedIndex} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("ensure runs table: %w", err)
		}
	}
	return &sqlCatalog{db: db, numbered: numbered}, nil
}

// rebind rewrites '?' placeholders as $1, $2, ... when needed.
func (c *sqlCatalog) rebind(q string) string {
	if !c.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *sqlCatalog) Begin(ctx context.Context, rec RunRecord) error {
	_, err := c.db.ExecContext(ctx, c.rebind(`INSERT INTO runs
		(id, model_id, store_key, status, started_at) VALUES (?, ?, ?, ?, ?)`),
		rec.ID.String(), rec.ModelID, rec.StoreKey, string(StatusRunning), rec.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

func (c *sqlCatalog) Finish(ctx context.Context, id uuid.UUID, out Outcome) error {
	res, err := c.db.ExecContext(ctx, c.rebind(`UPDATE runs SET
		status = ?, error_kind = ?, error = ?, num_samples = ?, stored_cells = ?, finished_at = ?
		WHERE id = ?`),
		string(out.Status), out.ErrorKind, out.Error, out.NumSamples, out.StoredCells, out.FinishedAt.UnixMilli(), id.String())
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectRuns = `SELECT id, model_id, store_key, status, error_kind, error,
	num_samples, stored_cells, started_at, finished_at FROM runs`

func (c *sqlCatalog) Get(ctx context.Context, id uuid.UUID) (RunRecord, error) {
	row := c.db.QueryRowContext(ctx, c.rebind(selectRuns+` WHERE id = ?`), id.String())
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns the newest runs first; limit <= 0 means no limit.
func (c *sqlCatalog) List(ctx context.Context, limit int) ([]RunRecord, error) {
	q := selectRuns + ` ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, c.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (c *sqlCatalog) Close() error { return c.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec      RunRecord
		id       string
		status   string
		started  int64
		finished sql.NullInt64
	)
	if err := s.Scan(&id, &rec.ModelID, &rec.StoreKey, &status, &rec.ErrorKind, &rec.Error,
		&rec.NumSamples, &rec.StoredCells, &started, &finished); err != nil {
		return RunRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Status = Status(status)
	rec.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		rec.FinishedAt = &t
	}
	return rec, nil
}
