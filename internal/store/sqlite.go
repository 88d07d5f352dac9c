// Package store provides SQLite persistence for the support engine: atomic
// snapshots of knowledge stores (records plus their vectors) and a shared
// opener used by other SQLite-backed components such as the query log.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// OpenDB opens (or creates) a SQLite database at path and applies ddl.
// Use ":memory:" for an in-memory database in tests.
func OpenDB(path, ddl string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if ddl != "" {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: migrate %s: %w", path, err)
		}
	}
	return db, nil
}
