// Package storage keeps per-chat moderation configuration in sqlite.
// Each table is represented by a store struct created with its schema, and each
// store carries the business logic for its data type. Sqlite needs app-level
// locking, so every store guards db access with its own RWMutex.
package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// NewSqlite opens (or creates) the sqlite database file and applies pragmas.
func NewSqlite(file string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %q: %w", file, err)
	}
	if err := setSqlitePragma(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set sqlite pragma: %w", err)
	}
	return db, nil
}

func setSqlitePragma(db *sqlx.DB) error {
	pragmas := map[string]string{
		"busy_timeout": "5000",
	}
	for name, value := range pragmas {
		if _, err := db.Exec("PRAGMA " + name + " = " + value); err != nil {
			return err
		}
	}
	return nil
}
