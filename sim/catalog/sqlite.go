package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// OpenSQLite opens (creating if needed) a catalog database file at path.
func OpenSQLite(ctx context.Context, path string) (Catalog, error) {
	if path == "" {
		path = "qca-sim.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; sqlite locks the whole file anyway.
	db.SetMaxOpenConns(1)
	c, err := newSQLCatalog(ctx, db, false)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}
