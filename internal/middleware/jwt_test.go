package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susubank/susubank/internal/auth"
	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identity"
)

type stubVerifier map[string]auth.Claims

func (s stubVerifier) VerifyAccess(_ context.Context, token string) (auth.Claims, error) {
	if token == "revoked" {
		return auth.Claims{}, auth.ErrTokenRevoked
	}
	claims, ok := s[token]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return claims, nil
}

func setupAuthApp() *fiber.App {
	verifier := stubVerifier{
		"customer": {UserID: "u-1", Role: identity.RoleCustomer},
		"officer":  {UserID: "u-2", Role: identity.RoleLoanOfficer},
	}
	app := fiber.New()
	protected := app.Group("", JWTAuth(verifier))
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, err := httpx.ActorID(c)
		if err != nil {
			return err
		}
		return c.SendString(uid + ":" + httpx.Role(c))
	})
	protected.Post("/approve", RequireRole(identity.RoleLoanOfficer, identity.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuth(t *testing.T) {
	app := setupAuthApp()

	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/me", ""))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/me", "garbage"))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/me", "revoked"))
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/me", "customer"))
}

func TestRequireRole(t *testing.T) {
	app := setupAuthApp()

	assert.Equal(t, http.StatusForbidden, call(t, app, http.MethodPost, "/approve", "customer"))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, "/approve", "officer"))
}
