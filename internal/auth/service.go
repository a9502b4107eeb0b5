package auth

import (
	"context"
	"errors"
	"strings"
)

// Service authenticates credentials and hands out sessions.
type Service struct {
	users  UserStore
	hasher PasswordHasher
	tokens *TokenService
}

// NewService wires the login flow. A nil hasher defaults to bcrypt.
func NewService(users UserStore, hasher PasswordHasher, tokens *TokenService) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Service{users: users, hasher: hasher, tokens: tokens}, nil
}

// Tokens exposes the underlying token service.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Login checks username and password and issues a session for an active user.
// Unknown users, inactive users and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.tokens.Issue(user.Identity())
}
