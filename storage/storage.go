package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// NewSqliteDB creates a new sqlite database
func NewSqliteDB(file string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", file, err)
	}
	// sqlite serialises writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return db, nil
}
