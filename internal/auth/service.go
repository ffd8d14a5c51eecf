// Package auth issues and verifies the access and refresh tokens used by the
// HTTP API.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/susubank/susubank/internal/config"
	"github.com/susubank/susubank/internal/identity"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// ErrTokenRevoked is returned for a token issued before the user's last logout.
var ErrTokenRevoked = errors.New("token version invalidated")

// Service signs and checks tokens against the user's current token version.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService constructs a token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims are the verified contents of an access token.
type Claims struct {
	UserID       string
	Role         string
	TokenVersion int
}

// Login issues a token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, tokenRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(user identity.User, typ, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := map[string]any{
		"sub":  user.ID,
		"role": user.Role,
		"ver":  user.TokenVersion,
		"typ":  typ,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return SignHS256(claims, []byte(secret))
}

// VerifyAccess checks an access token and that its version is still current.
// The role is re-read from storage so demotions take effect immediately.
func (s *Service) VerifyAccess(ctx context.Context, token string) (Claims, error) {
	user, ver, err := s.verify(ctx, token, tokenAccess, s.cfg.JWTSecret)
	if err != nil {
		return Claims{}, err
	}
	return Claims{UserID: user.ID, Role: user.Role, TokenVersion: ver}, nil
}

// Refresh verifies the refresh token and issues a new pair with the same version.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	user, _, err := s.verify(ctx, refreshToken, tokenRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return s.Login(user)
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	_, err := s.idRepo.IncrementTokenVersion(ctx, userID)
	return err
}

func (s *Service) verify(ctx context.Context, token, typ, secret string) (identity.User, int, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret), s.now())
	if err != nil {
		return identity.User{}, 0, err
	}
	if got, _ := claims["typ"].(string); got != typ {
		return identity.User{}, 0, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	verFloat, _ := claims["ver"].(float64)
	ver := int(verFloat)

	user, err := s.idRepo.FindByID(ctx, sub)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, 0, ErrInvalidToken
	}
	if err != nil {
		return identity.User{}, 0, err
	}
	if user.TokenVersion != ver || !user.IsActive {
		return identity.User{}, 0, ErrTokenRevoked
	}
	return user, ver, nil
}
