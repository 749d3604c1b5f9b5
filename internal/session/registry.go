// Package session keeps the list of chat sessions and the active session
// pointer in local durable storage.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/kv"
)

// Storage keys.
const (
	SessionsKey = "chatSessions"
	ActiveKey   = "activeSessionId"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry is the newest-first list of sessions. Every mutation rewrites the
// whole list.
type Registry struct {
	store kv.Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewRegistry creates a Registry over store.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// List returns all sessions, newest first.
func (r *Registry) List() ([]chat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (chat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return chat.Session{}, err
	}
	if i := indexOf(sessions, id); i >= 0 {
		return sessions[i], nil
	}
	return chat.Session{}, fmt.Errorf("get %s: %w", id, ErrSessionNotFound)
}

// Create prepends a new unnamed session, makes it active and returns its id.
func (r *Registry) Create() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.create()
}

// Rename sets the display name of a session. A blank name clears it.
func (r *Registry) Rename(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return err
	}
	i := indexOf(sessions, id)
	if i < 0 {
		return fmt.Errorf("rename %s: %w", id, ErrSessionNotFound)
	}
	sessions[i].Name = strings.TrimSpace(name)

	if err := r.save(sessions); err != nil {
		return err
	}
	slog.Debug("session renamed", slog.String("id", id), slog.String("name", sessions[i].Name))
	return nil
}

// Delete removes a session. If it was active the pointer is cleared; picking
// the next active session is up to the caller.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return err
	}
	i := indexOf(sessions, id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrSessionNotFound)
	}
	sessions = append(sessions[:i], sessions[i+1:]...)

	if err := r.save(sessions); err != nil {
		return err
	}

	active, ok, err := r.store.Get(ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to read active session: %w", err)
	}
	if ok && active == id {
		if err := r.store.Set(ActiveKey, ""); err != nil {
			return fmt.Errorf("failed to clear active session: %w", err)
		}
	}

	slog.Debug("session deleted", slog.String("id", id), slog.Int("remaining", len(sessions)))
	return nil
}

// ActiveID returns the active session id, creating a session when the
// pointer is absent or no longer resolves.
func (r *Registry) ActiveID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, ok, err := r.store.Get(ActiveKey)
	if err != nil {
		return "", fmt.Errorf("failed to read active session: %w", err)
	}
	if ok && active != "" {
		sessions, err := r.load()
		if err != nil {
			return "", err
		}
		if indexOf(sessions, active) >= 0 {
			return active, nil
		}
		slog.Warn("active session pointer is dangling", slog.String("id", active))
	}
	return r.create()
}

// SetActive points the active session at id.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return err
	}
	if indexOf(sessions, id) < 0 {
		return fmt.Errorf("activate %s: %w", id, ErrSessionNotFound)
	}
	if err := r.store.Set(ActiveKey, id); err != nil {
		return fmt.Errorf("failed to write active session: %w", err)
	}
	return nil
}

func (r *Registry) create() (string, error) {
	sessions, err := r.load()
	if err != nil {
		return "", err
	}

	s, err := chat.NewSession(r.now())
	if err != nil {
		return "", err
	}
	sessions = append([]chat.Session{s}, sessions...)

	if err := r.save(sessions); err != nil {
		return "", err
	}
	if err := r.store.Set(ActiveKey, s.ID); err != nil {
		return "", fmt.Errorf("failed to write active session: %w", err)
	}

	slog.Debug("session created", slog.String("id", s.ID), slog.Time("created", s.Created))
	return s.ID, nil
}

func (r *Registry) load() ([]chat.Session, error) {
	raw, ok, err := r.store.Get(SessionsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	sessions := []chat.Session{}
	if !ok || raw == "" {
		return sessions, nil
	}
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *Registry) save(sessions []chat.Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	if err := r.store.Set(SessionsKey, string(raw)); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	return nil
}

func indexOf(sessions []chat.Session, id string) int {
	for i, s := range sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
