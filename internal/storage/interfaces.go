// Package storage provides composable storage interfaces for the Angel AI
// chat service.
//
// The storage layer is split into small, focused interfaces (chat, users,
// knowledge, settings) that backends implement independently. Two backends
// exist: SQLite (default, single-writer WAL) and PostgreSQL.
package storage

import (
	"context"

	"github.com/funecosystem/angel-ai/pkg/types"
)

// ChatStore persists conversations and their messages. The chat service
// treats it as an ordered, durable log keyed by conversation: messages come
// back oldest-first, and edit/delete operations cascade to everything that
// follows the target message inside one transaction.
type ChatStore interface {
	// CreateConversation creates a new conversation owned by userID.
	CreateConversation(ctx context.Context, conv *types.Conversation) error

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)

	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]*types.Conversation, error)

	// RenameConversation updates a conversation title.
	// Returns ErrNotFound if the conversation doesn't exist.
	RenameConversation(ctx context.Context, id, title string) error

	// DeleteConversation removes a conversation and all of its messages.
	// Returns ErrNotFound if the conversation doesn't exist.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage appends a message to a conversation, assigning the next
	// sequence number, and touches the conversation's updated_at.
	AppendMessage(ctx context.Context, msg *types.Message) error

	// ListMessages returns all messages of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error)

	// GetMessage retrieves a single message by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetMessage(ctx context.Context, id string) (*types.Message, error)

	// EditMessageTruncate updates the content of a user message, marks it
	// edited, and deletes every later message in the same conversation.
	// The update and the truncation happen in a single transaction: a
	// partially applied edit (text updated but stale replies kept) is a
	// correctness bug, not an acceptable interleaving.
	EditMessageTruncate(ctx context.Context, id, content string) error

	// DeleteMessageCascade deletes a message and every later message in the
	// same conversation, in a single transaction.
	DeleteMessageCascade(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists registered accounts.
type UserStore interface {
	// CreateUser creates a new account. Returns ErrDuplicate when the email
	// is already registered.
	CreateUser(ctx context.Context, user *types.User) error

	// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
	GetUser(ctx context.Context, id string) (*types.User, error)

	// GetUserByEmail retrieves a user by email. Returns ErrNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
}

// KnowledgeStore persists the admin-curated knowledge corpus. The corpus has
// no coupling to the response engine.
type KnowledgeStore interface {
	// CreateDoc stores a new knowledge document.
	CreateDoc(ctx context.Context, doc *types.KnowledgeDoc) error

	// GetDoc retrieves a document by ID. Returns ErrNotFound if absent.
	GetDoc(ctx context.Context, id string) (*types.KnowledgeDoc, error)

	// ListDocs returns documents newest-first with pagination.
	ListDocs(ctx context.Context, opts ListOptions) (*PaginatedResult[types.KnowledgeDoc], error)

	// UpdateDoc modifies an existing document.
	// Returns ErrNotFound if it doesn't exist.
	UpdateDoc(ctx context.Context, doc *types.KnowledgeDoc) error

	// DeleteDoc removes a document. Returns ErrNotFound if it doesn't exist.
	DeleteDoc(ctx context.Context, id string) error
}

// SettingsStore persists key/value runtime settings (persona configuration).
type SettingsStore interface {
	// GetSetting returns the value for key, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting writes a key/value pair with upsert semantics.
	SetSetting(ctx context.Context, key, value string) error
}

// Store is the full storage surface a backend provides.
type Store interface {
	ChatStore
	UserStore
	KnowledgeStore
	SettingsStore

	// RunMigrations applies pending NNN_name.up.sql files from dir.
	RunMigrations(dir string) error
}
