package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// CreateUser creates a new account. Email comparison is case-insensitive:
// addresses are stored lowercased.
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return fmt.Errorf("%w: user ID and email are required", storage.ErrInvalidInput)
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(user.Email)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.DisplayName, user.IsAdmin, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email %s is already registered", storage.ErrDuplicate, user.Email)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	return s.getUser(ctx, "SELECT id, email, password_hash, display_name, is_admin, created_at FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.getUser(ctx, "SELECT id, email, password_hash, display_name, is_admin, created_at FROM users WHERE email = ?", strings.ToLower(email))
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.IsAdmin, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get user: %w", err)
	}
	return &user, nil
}
