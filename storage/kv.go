package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// KV is a key-value store kept in a sqlite table. It satisfies kv.Store.
type KV struct {
	db *sqlx.DB
}

// NewKV creates a new KV storage
func NewKV(db *sqlx.DB) (*KV, error) {
	createKVTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated DATETIME DEFAULT CURRENT_TIMESTAMP
	)
	`
	if _, err := db.Exec(createKVTable); err != nil {
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &KV{db: db}, nil
}

// Get returns the value stored under key
func (s *KV) Get(key string) (string, bool, error) {
	var value string
	err := s.db.Get(&value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv for key %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value
func (s *KV) Set(key, value string) error {
	upsertQuery := `
	INSERT INTO kv (key, value, updated) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated
	`
	if _, err := s.db.Exec(upsertQuery, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set kv for key %s: %w", key, err)
	}

	slog.Debug("kv updated",
		slog.String("key", key),
		slog.Int("size", len(value)),
	)
	return nil
}
