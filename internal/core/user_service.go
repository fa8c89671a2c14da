package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/llmwui/llm-wui/internal/auth"
	"github.com/llmwui/llm-wui/internal/store"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type UserService struct {
	repo   store.Repository
	tokens *auth.TokenIssuer
}

func NewUserService(repo store.Repository, tokens *auth.TokenIssuer) *UserService {
	return &UserService{repo: repo, tokens: tokens}
}

func (s *UserService) Signup(ctx context.Context, username, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, username, hash)
}

// Login returns a signed token for valid credentials.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", err
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return s.tokens.GenerateJWT(user.ID)
}

// Authenticate resolves a token to an existing user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	userID, err := s.tokens.ValidateJWT(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
