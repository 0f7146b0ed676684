package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite message cache.
type DB struct {
	*sql.DB
	readOnly bool
}

// Open opens the cache read-write, creating the file and its directory.
// WAL lets a read-only chattui share the file with chatd.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(path, "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", false)
}

// OpenReadOnly opens an existing cache without taking write locks. The
// file must exist.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return open(path, "mode=ro&_busy_timeout=5000", true)
}

func open(path, query string, readOnly bool) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?"+query)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, readOnly: readOnly}, nil
}

// ReadOnly reports whether the handle was opened with OpenReadOnly.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}
