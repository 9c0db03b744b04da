package session

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Messages are immutable once created and
// only ever appended; the full history is replaced solely on session reload.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// CloneHistory returns a defensive copy so callers can hold a snapshot
// while the live history keeps growing.
func CloneHistory(history []Message) []Message {
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// UserMessages filters the user-authored turns of a history.
func UserMessages(history []Message) []Message {
	var out []Message
	for _, m := range history {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}
