package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records []chat.Record
	err     error
}

func (m *memStore) Write(_ context.Context, record chat.Record) (chat.Record, error) {
	if m.err != nil {
		return chat.Record{}, m.err
	}
	record.ID = "id-" + record.Message
	record.Timestamp = time.Date(2024, 1, 1, 0, 0, len(m.records), 0, time.UTC)
	m.records = append(m.records, record)
	return record, nil
}

func (m *memStore) Find(_ context.Context, sessionID, userID string) ([]chat.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []chat.Record{}
	for _, r := range m.records {
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateChat(t *testing.T) {
	store := &memStore{}
	h := NewServer(store, false)

	rec := do(t, h, http.MethodPost, "/api/chats", `{"sessionId":"s1","message":"hi","isUser":true,"userId":"u1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got chat.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "id-hi", got.ID)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.IsUser)
	assert.False(t, got.Timestamp.IsZero())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateChatValidation(t *testing.T) {
	h := NewServer(&memStore{}, false)

	tests := []struct {
		name string
		body string
	}{
		{"missing session", `{"message":"hi","isUser":true}`},
		{"missing message", `{"sessionId":"s1","isUser":true}`},
		{"empty message", `{"sessionId":"s1","message":"","isUser":true}`},
		{"invalid json", `{"sessionId":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/chats", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestCreateChatBodyTooLarge(t *testing.T) {
	store := &memStore{}
	h := NewServer(store, false)

	body := `{"sessionId":"s1","isUser":true,"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := do(t, h, http.MethodPost, "/api/chats", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, store.records)
}

func TestCreateChatStoreFailure(t *testing.T) {
	h := NewServer(&memStore{err: errors.New("disk full")}, false)

	rec := do(t, h, http.MethodPost, "/api/chats", `{"sessionId":"s1","message":"hi","isUser":true}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to save chat message"}`, rec.Body.String())
}

func TestListChats(t *testing.T) {
	store := &memStore{}
	h := NewServer(store, false)

	for _, body := range []string{
		`{"sessionId":"s1","message":"a","isUser":true,"userId":"u1"}`,
		`{"sessionId":"s2","message":"b","isUser":true,"userId":"u1"}`,
		`{"sessionId":"s1","message":"c","isUser":false,"userId":"u2"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/chats", body).Code)
	}

	list := func(target string) []chat.Record {
		rec := do(t, h, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var records []chat.Record
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
		return records
	}

	assert.Len(t, list("/api/chats"), 3)
	bySession := list("/api/chats?sessionId=s1")
	require.Len(t, bySession, 2)
	assert.Equal(t, "a", bySession[0].Message)
	assert.Equal(t, "c", bySession[1].Message)
	assert.Len(t, list("/api/chats?sessionId=s1&userId=u2"), 1)
	assert.Empty(t, list("/api/chats?sessionId=missing"))
}

func TestListChatsStoreFailure(t *testing.T) {
	h := NewServer(&memStore{err: errors.New("locked")}, false)

	rec := do(t, h, http.MethodGet, "/api/chats?sessionId=s1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(&memStore{}, false)

	rec := do(t, h, http.MethodDelete, "/api/chats", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(&memStore{}, true)

	rec := do(t, h, http.MethodOptions, "/api/chats", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireToken(t *testing.T) {
	h := NewServer(&memStore{}, true)

	rec := do(t, h, http.MethodGet, "/api/chats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer abc")
	authed := httptest.NewRecorder()
	h.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)

	health := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	h := NewServer(&memStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
