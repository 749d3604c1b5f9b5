package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/kv"
	"github.com/gennadis/virtualparent/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessions() []chat.Session {
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return []chat.Session{
		{ID: "0190a1b2-aaaa", Created: created, Name: "Bedtime routines"},
		{ID: "0190a1b2-bbbb", Created: created.Add(-time.Hour)},
		{ID: "0180ffff-cccc", Created: created.Add(-2 * time.Hour), Name: "Picky eaters"},
	}
}

func TestResolveSession(t *testing.T) {
	sessions := testSessions()

	tests := []struct {
		ref  string
		want string
	}{
		{"1", "0190a1b2-aaaa"},
		{"3", "0180ffff-cccc"},
		{"0190a1b2-bbbb", "0190a1b2-bbbb"},
		{"0180", "0180ffff-cccc"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := resolveSession(sessions, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	_, err := resolveSession(sessions, "9")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = resolveSession(sessions, "0190")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestPrintSessions(t *testing.T) {
	var buf bytes.Buffer
	sessions := testSessions()
	sessions[0].Name = strings.Repeat("very long name ", 10)

	printSessions(&buf, sessions, "0190a1b2-bbbb")
	out := buf.String()

	assert.Contains(t, out, "Sessions (3)")
	assert.Contains(t, out, "Picky eaters")
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, sessions[0].Name)
	assert.Contains(t, out, "* ")

	buf.Reset()
	printSessions(&buf, nil, "")
	assert.Contains(t, buf.String(), "No sessions yet.")
}

func TestReselect(t *testing.T) {
	registry := session.NewRegistry(kv.NewMemory())
	older, err := registry.Create()
	require.NoError(t, err)
	newer, err := registry.Create()
	require.NoError(t, err)

	require.NoError(t, registry.Delete(newer))
	require.NoError(t, reselect(registry))
	active, err := registry.ActiveID()
	require.NoError(t, err)
	assert.Equal(t, older, active)

	require.NoError(t, registry.Delete(older))
	require.NoError(t, reselect(registry))
	sessions, err := registry.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	active, err = registry.ActiveID()
	require.NoError(t, err)
	assert.Equal(t, sessions[0].ID, active)
}
