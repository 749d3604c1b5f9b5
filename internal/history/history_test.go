package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gennadis/virtualparent/internal/server"
	"github.com/gennadis/virtualparent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, requireToken bool) *httptest.Server {
	t.Helper()
	db, err := storage.NewSqliteDB(filepath.Join(t.TempDir(), "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	messages, err := storage.NewMessages(db)
	require.NoError(t, err)

	srv := httptest.NewServer(server.NewServer(messages, requireToken))
	t.Cleanup(srv.Close)
	return srv
}

func TestSaveAndFetchRoundTrip(t *testing.T) {
	srv := newService(t, false)
	c := NewClient(srv.URL, "", "")
	ctx := context.Background()

	c.SaveMessage(ctx, "s1", "How do I handle tantrums?", true)
	c.SaveMessage(ctx, "s1", "Stay calm and name the feeling.", false)
	c.SaveMessage(ctx, "s2", "other session", true)

	got := c.FetchHistory(ctx, "s1")
	require.Len(t, got, 2)
	assert.Equal(t, "How do I handle tantrums?", got[0].Content)
	assert.True(t, got[0].IsUser)
	assert.Equal(t, "Stay calm and name the feeling.", got[1].Content)
	assert.False(t, got[1].IsUser)
	assert.False(t, got[1].Timestamp.Before(got[0].Timestamp))
	assert.Equal(t, "s1", got[0].SessionID)
}

func TestFetchHistoryUnknownSession(t *testing.T) {
	srv := newService(t, false)
	c := NewClient(srv.URL, "", "")

	got := c.FetchHistory(context.Background(), "nope")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetchHistoryFailureIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	got := NewClient(srv.URL, "", "").FetchHistory(context.Background(), "s1")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetchHistoryUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Empty(t, NewClient(url, "", "").FetchHistory(context.Background(), "s1"))
}

func TestFetchHistorySortsByTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"2","sessionId":"s1","message":"second","isUser":false,"timestamp":"2024-01-01T00:00:02Z"},
			{"id":"1","sessionId":"s1","message":"first","isUser":true,"timestamp":"2024-01-01T00:00:01Z"}
		]`))
	}))
	defer srv.Close()

	got := NewClient(srv.URL, "", "").FetchHistory(context.Background(), "s1")
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
}

func TestSaveMessageFailureIsSwallowed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.NotPanics(t, func() {
		NewClient(srv.URL, "", "").SaveMessage(context.Background(), "s1", "hi", true)
	})
	assert.Equal(t, int32(1), calls.Load(), "failed saves are not retried")
}

func TestClientSendsTokenAndUser(t *testing.T) {
	srv := newService(t, true)
	ctx := context.Background()

	anonymous := NewClient(srv.URL, "", "")
	anonymous.SaveMessage(ctx, "s1", "dropped", true)

	c := NewClient(srv.URL, "secret", "parent-1")
	c.SaveMessage(ctx, "s1", "kept", true)

	assert.Empty(t, anonymous.FetchHistory(ctx, "s1"))
	got := c.FetchHistory(ctx, "s1")
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Content)

	other := NewClient(srv.URL, "secret", "parent-2")
	assert.Empty(t, other.FetchHistory(ctx, "s1"))
}

func TestCheckHealth(t *testing.T) {
	srv := newService(t, true)
	assert.True(t, NewClient(srv.URL, "", "").CheckHealth(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	defer down.Close()
	assert.False(t, NewClient(down.URL, "", "").CheckHealth(context.Background()))
}
