// Package chat provides the durable conversation store: named chats backed by
// a pluggable key-value backend, with snapshot export/import and last-write-wins
// merging across devices.
package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single utterance within a chat.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Chat is a named, append-only sequence of messages. The name is the primary
// key and is immutable once the chat exists. LastEdited is bumped on creation
// and on every append, and is the conflict-resolution key for snapshot merges.
type Chat struct {
	Name       string    `json:"name"`
	Messages   []Message `json:"messages"`
	LastEdited time.Time `json:"lastEdited"`
}

// clone returns a deep copy so callers can't reach into the store's state.
func (c Chat) clone() Chat {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
