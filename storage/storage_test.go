package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/kv"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ kv.Store = (*KV)(nil)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := NewSqliteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMessagesWriteAndFind(t *testing.T) {
	ctx := context.Background()
	messages, err := NewMessages(newTestDB(t))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	messages.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := messages.Write(ctx, chat.Record{SessionID: "s1", Message: "How do I help with homework?", IsUser: true})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, base.Add(time.Second), first.Timestamp)

	_, err = messages.Write(ctx, chat.Record{SessionID: "s1", Message: "Sit with them and break it into steps.", IsUser: false})
	require.NoError(t, err)
	_, err = messages.Write(ctx, chat.Record{SessionID: "s2", UserID: "u1", Message: "Hi", IsUser: true})
	require.NoError(t, err)

	got, err := messages.Find(ctx, "s1", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "How do I help with homework?", got[0].Message)
	assert.True(t, got[0].IsUser)
	assert.Equal(t, "Sit with them and break it into steps.", got[1].Message)
	assert.False(t, got[1].IsUser)
	assert.False(t, got[1].Timestamp.Before(got[0].Timestamp))

	all, err := messages.Find(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byUser, err := messages.Find(ctx, "", "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "s2", byUser[0].SessionID)
}

func TestMessagesFindUnknownSessionIsEmpty(t *testing.T) {
	messages, err := NewMessages(newTestDB(t))
	require.NoError(t, err)

	got, err := messages.Find(context.Background(), "nope", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestKVGetSet(t *testing.T) {
	store, err := NewKV(newTestDB(t))
	require.NoError(t, err)

	_, ok, err := store.Get("activeSessionId")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("activeSessionId", "a"))
	require.NoError(t, store.Set("activeSessionId", "b"))

	v, ok, err := store.Get("activeSessionId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}
