package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/auth"
	"github.com/susubank/susubank/internal/httpx"
)

// TokenVerifier checks an access token. auth.Service satisfies it.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (auth.Claims, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and puts
// the caller's id and role into the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := verifier.VerifyAccess(c.UserContext(), tokenStr)
		switch {
		case errors.Is(err, auth.ErrTokenRevoked):
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		case errors.Is(err, auth.ErrInvalidToken):
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		case err != nil:
			return err
		}

		c.Locals(httpx.LocalUserID, claims.UserID)
		c.Locals(httpx.LocalRole, claims.Role)
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after JWTAuth.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !slices.Contains(roles, httpx.Role(c)) {
			return fiber.NewError(http.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
