package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// CreateConversation creates a new conversation owned by conv.UserID.
func (s *Store) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil || conv.ID == "" || conv.UserID == "" {
		return fmt.Errorf("%w: conversation ID and user ID are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*types.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*types.Conversation, 0)
	for rows.Next() {
		var conv types.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan conversation: %w", err)
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// RenameConversation updates a conversation title.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?
	`, title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to rename conversation: %w", err)
	}
	return requireRow(res)
}

// DeleteConversation removes a conversation; messages cascade via FK.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete conversation: %w", err)
	}
	return requireRow(res)
}

// AppendMessage appends a message to its conversation with the next sequence
// number and touches the conversation's updated_at, in one transaction.
func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("%w: message ID and conversation ID are required", storage.ErrInvalidInput)
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", storage.ErrInvalidInput, msg.Role)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?
	`, msg.ConversationID).Scan(&msg.Seq); err != nil {
		return fmt.Errorf("sqlite: failed to assign message sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, content, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.Seq, string(msg.Role), msg.Content, msg.Edited, msg.CreatedAt); err != nil {
		return fmt.Errorf("sqlite: failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, msg.CreatedAt, msg.ConversationID); err != nil {
		return fmt.Errorf("sqlite: failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit message: %w", err)
	}
	return nil
}

// ListMessages returns all messages of a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, edited, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*types.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// GetMessage retrieves a single message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, seq, role, content, edited, created_at
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessageTruncate updates the content of a message, marks it edited, and
// deletes every later message in the same conversation. Both steps commit
// atomically so a crash can never leave the new text alongside stale replies.
func (s *Store) EditMessageTruncate(ctx context.Context, id, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	convID, seq, err := messagePosition(ctx, tx, id)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET content = ?, edited = 1 WHERE id = ?
	`, content, id); err != nil {
		return fmt.Errorf("sqlite: failed to update message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id = ? AND seq > ?
	`, convID, seq); err != nil {
		return fmt.Errorf("sqlite: failed to truncate conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit edit: %w", err)
	}
	return nil
}

// DeleteMessageCascade deletes a message and every later message in the same
// conversation, atomically.
func (s *Store) DeleteMessageCascade(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	convID, seq, err := messagePosition(ctx, tx, id)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id = ? AND seq >= ?
	`, convID, seq); err != nil {
		return fmt.Errorf("sqlite: failed to delete messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit delete: %w", err)
	}
	return nil
}

// messagePosition resolves a message's conversation and sequence inside tx.
func messagePosition(ctx context.Context, tx *sql.Tx, id string) (string, int64, error) {
	var convID string
	var seq int64
	err := tx.QueryRowContext(ctx, `
		SELECT conversation_id, seq FROM messages WHERE id = ?
	`, id).Scan(&convID, &seq)
	if err == sql.ErrNoRows {
		return "", 0, storage.ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("sqlite: failed to locate message: %w", err)
	}
	return convID, seq, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var msg types.Message
	var role string
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Seq, &role, &msg.Content, &msg.Edited, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan message: %w", err)
	}
	msg.Role = types.Role(role)
	return &msg, nil
}

// requireRow converts a zero-row update/delete into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
