package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Messages is a storage for chat records
type Messages struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMessages creates a new Messages storage
func NewMessages(db *sqlx.DB) (*Messages, error) {
	createChatsTable := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		is_user BOOLEAN NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)
	`
	if _, err := db.Exec(createChatsTable); err != nil {
		return nil, fmt.Errorf("failed to create chats table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS chats_session_id ON chats (session_id)"); err != nil {
		return nil, fmt.Errorf("failed to create chats index: %w", err)
	}

	return &Messages{db: db, now: time.Now}, nil
}

// Find returns records matching the filters in ascending timestamp order.
// Empty filters match everything.
func (m *Messages) Find(ctx context.Context, sessionID, userID string) ([]chat.Record, error) {
	var (
		conditions []string
		args       []any
	)
	if sessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, sessionID)
	}
	if userID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, userID)
	}

	query := "SELECT id, session_id, user_id, message, is_user, timestamp FROM chats"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp ASC, rowid ASC"

	records := []chat.Record{}
	if err := m.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get chats for session_id %q user_id %q: %w", sessionID, userID, err)
	}

	slog.Debug("read chats",
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// Write stores a new record, assigning its id and timestamp.
func (m *Messages) Write(ctx context.Context, record chat.Record) (chat.Record, error) {
	record.ID = uuid.NewString()
	record.Timestamp = m.now().UTC()

	insertQuery := "INSERT INTO chats (id, session_id, user_id, message, is_user, timestamp) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := m.db.ExecContext(ctx, insertQuery,
		record.ID, record.SessionID, record.UserID, record.Message, record.IsUser, record.Timestamp,
	); err != nil {
		return chat.Record{}, fmt.Errorf("failed to insert chat for session_id %s: %w", record.SessionID, err)
	}

	slog.Debug("chat added to chats",
		slog.String("id", record.ID),
		slog.String("session_id", record.SessionID),
		slog.Bool("is_user", record.IsUser),
		slog.Time("timestamp", record.Timestamp),
	)
	return record, nil
}
