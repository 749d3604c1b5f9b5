package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session represents a chat session
type Session struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Name    string    `json:"name,omitempty"`
}

// NewSession creates a new unnamed Session. Ids are UUIDv7, which combine the
// creation time with random bits.
func NewSession(now time.Time) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate session id: %w", err)
	}
	return Session{
		ID:      id.String(),
		Created: now,
	}, nil
}

// DisplayName returns the session name or a label derived from its creation time.
func (s Session) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return "Chat " + s.Created.Local().Format("Jan 2, 15:04")
}
