package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a Chat. Assistant content grows while the
// message is the active streaming target and is frozen afterwards.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Chat struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Messages    []ChatMessage `json:"messages"`
	CreatedAt   time.Time     `json:"created_at"`
	LastMessage string        `json:"last_message,omitempty"`
}

// Clone returns a deep copy safe to hand to observers.
func (c *Chat) Clone() Chat {
	out := *c
	out.Messages = append([]ChatMessage(nil), c.Messages...)
	return out
}

// ChatTurn is the wire shape of one history entry; timestamps and ids stay client-side.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStreamRequest is the payload sent to the token stream endpoint.
type ChatStreamRequest struct {
	Messages []ChatTurn `json:"messages"`
}
