// Package types defines the shared domain types for the Angel AI chat service.
package types

import "time"

// Role identifies the author of a message within a conversation.
type Role string

const (
	// RoleUser marks messages written by the authenticated user.
	RoleUser Role = "user"

	// RoleAngel marks messages generated by the Angel persona.
	RoleAngel Role = "angel"
)

// Valid reports whether the role is one of the two known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAngel
}

// Conversation is a single chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted utterance or reply inside a conversation.
// Seq is a store-assigned monotonic sequence number; listing a conversation
// oldest-first orders by Seq, and edit/delete cascades use it to identify
// "everything after" a given message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int64     `json:"seq"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// KnowledgeDoc is one curated document in the admin knowledge corpus.
// The corpus is inert storage with respect to the response engine; nothing
// in the chat path reads from it.
type KnowledgeDoc struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	EnergyLevel int       `json:"energy_level"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
