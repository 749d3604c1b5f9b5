package chat

import "time"

// Message is one transcript entry of a session.
type Message struct {
	SessionID string    `json:"sessionId"`
	Content   string    `json:"message"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// Role maps the message author onto a provider role.
func (m Message) Role() ChatRole {
	if m.IsUser {
		return ChatRoleUser
	}
	return ChatRoleAssistant
}

// ToChatMessages converts transcript entries into provider context entries.
func ToChatMessages(messages []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ChatMessage{Role: m.Role(), Content: m.Content})
	}
	return out
}

// Record is the stored form of a Message in the persistence service.
type Record struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"sessionId" db:"session_id"`
	UserID    string    `json:"userId,omitempty" db:"user_id"`
	Message   string    `json:"message" db:"message"`
	IsUser    bool      `json:"isUser" db:"is_user"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// ToMessage drops the storage-only fields.
func (r Record) ToMessage() Message {
	return Message{
		SessionID: r.SessionID,
		Content:   r.Message,
		IsUser:    r.IsUser,
		Timestamp: r.Timestamp,
	}
}
