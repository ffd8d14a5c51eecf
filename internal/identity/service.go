// Package identity registers users and verifies their credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/susubank/susubank/internal/logging"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInactiveUser is returned when a deactivated user tries to log in.
	ErrInactiveUser = errors.New("user is inactive")
	// ErrWeakPassword is returned when a password is shorter than MinPasswordLength.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	// ErrInvalidRole is returned for a role outside the known set.
	ErrInvalidRole = errors.New("invalid role")
)

// Service manages identity lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates an active user with a hashed password. An empty role
// registers a customer.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if len(reg.Password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	role := reg.Role
	if role == "" {
		role = RoleCustomer
	}
	if !validRole(role) {
		return User{}, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	now := s.now()
	user := User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Email:        strings.ToLower(strings.TrimSpace(reg.Email)),
		Phone:        strings.TrimSpace(reg.Phone),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	s.logger.Info("identity.register completed", slog.String("user_id", user.ID), slog.String("role", user.Role))
	return user, nil
}

// Authenticate verifies email and password and records the login.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, ErrInactiveUser
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = &now
	return user, nil
}

// EnsureUser registers reg unless its email is already taken. It is used to
// bootstrap the first staff account.
func (s *Service) EnsureUser(ctx context.Context, reg Registration) (User, error) {
	existing, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(reg.Email)))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	user, err := s.Register(ctx, reg)
	if errors.Is(err, ErrUserExists) {
		return s.repo.FindByEmail(ctx, reg.Email)
	}
	return user, err
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// RevokeTokens bumps the user's token version so every outstanding token
// stops verifying.
func (s *Service) RevokeTokens(ctx context.Context, id string) (int, error) {
	return s.repo.IncrementTokenVersion(ctx, id)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
