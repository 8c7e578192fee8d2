package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const defaultPostgresDSN = "postgres://localhost/qcasim?sslmode=disable"

// OpenPostgres connects to dsn and ensures the runs table exists.
func OpenPostgres(ctx context.Context, dsn string) (Catalog, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	c, err := newSQLCatalog(ctx, db, true)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}
