package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/funecosystem/angel-ai/internal/auth"
	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// ErrInvalidCredentials is returned on login with an unknown email or a
// wrong password. Callers should not distinguish the two cases.
var ErrInvalidCredentials = errors.New("services: invalid email or password")

// AuthService handles account registration and login.
type AuthService struct {
	store  storage.UserStore
	tokens *auth.Manager
}

// NewAuthService creates an auth service.
func NewAuthService(store storage.UserStore, tokens *auth.Manager) *AuthService {
	return &AuthService{store: store, tokens: tokens}
}

// Register creates a new account and returns the user plus a session
// token. Returns storage.ErrDuplicate when the email is taken.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*types.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) {
		return nil, "", fmt.Errorf("%w: a valid email is required", storage.ErrInvalidInput)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	user := &types.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}
	return user, s.tokens.Issue(user.ID), nil
}

// Login verifies credentials and returns the user plus a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}
	return user, s.tokens.Issue(user.ID), nil
}

// CurrentUser resolves a session token to its account.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*types.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, userID)
}

// validEmail applies a minimal shape check; real validation happens when
// mail is actually sent, which this application never does.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}
