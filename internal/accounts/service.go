// Package accounts provides email/password account management.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blocknote/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserStore defines the storage interface for accounts
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	CreateUser(ctx context.Context, email, passwordHash string) (store.User, error)
	UpdateUserEmail(ctx context.Context, id int64, email string) (store.User, error)
}

// Service provides registration and credential checks
type Service struct {
	store UserStore
}

// NewService creates a new accounts service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return store.User{}, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrEmailTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login authenticates a user by email and password
func (s *Service) Login(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateEmail changes the account email address
func (s *Service) UpdateEmail(ctx context.Context, userID int64, email string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return store.User{}, errors.New("email is required")
	}
	user, err := s.store.UpdateUserEmail(ctx, userID, email)
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrEmailTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("update email: %w", err)
	}
	return user, nil
}
