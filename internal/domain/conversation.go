// Package domain contains core business types and interfaces.
//
// This file defines the Conversation and Message types reconciled by the
// sync merger. The server is the source of truth; the client holds a cache
// that is merged in idempotently.
package domain

import "time"

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation groups the messages an account exchanged with one persona.
// UpdatedAt advances monotonically on every sync.
type Conversation struct {
	ID        string
	AccountID string
	PersonaID string
	Title     string
	UpdatedAt time.Time
	CreatedAt time.Time
}

// Message is a single chat turn. Messages are immutable once written and
// their identifiers are unique within a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// DefaultConversationTitle is used when a sync creates a conversation
// without a client-supplied title.
const DefaultConversationTitle = "New chat"
