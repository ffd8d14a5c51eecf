package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susubank/susubank/internal/config"
	"github.com/susubank/susubank/internal/logging"
)

const (
	adminEmail    = "admin@susubank.test"
	adminPassword = "bootstrap-password"
)

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func (c *client) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (c *client) login(email, password string) {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/api/v1/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(c.t, http.StatusOK, status, body)
	c.token = body["tokens"].(map[string]any)["access_token"].(string)
}

func newTestServer(t *testing.T) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	cfg := config.Config{
		AppName:                "SusuBank",
		AppEnv:                 "test",
		JWTSecret:              "server-test-access-secret-0123456",
		RefreshSecret:          "server-test-refresh-secret-012345",
		AccessTokenTTL:         time.Minute,
		RefreshTokenTTL:        time.Hour,
		IdempotencyTTL:         time.Minute,
		RequestTimeout:         5 * time.Second,
		LoginAttemptsPerMinute: 20,
		AdminEmail:             adminEmail,
		AdminPassword:          adminPassword,
	}
	srv, err := New(cfg, nil, cache, logging.Discard())
	require.NoError(t, err)
	return srv.App()
}

func TestSavingsAndLoanJourney(t *testing.T) {
	app := newTestServer(t)
	customer := &client{t: t, app: app}
	officer := &client{t: t, app: app}

	status, _ := customer.do(http.MethodPost, "/api/v1/auth/register",
		`{"first_name":"Abena","last_name":"Asante","email":"abena@example.com","password":"long-enough"}`)
	require.Equal(t, http.StatusCreated, status)
	customer.login("abena@example.com", "long-enough")
	officer.login(adminEmail, adminPassword)

	status, body := customer.do(http.MethodPost, "/api/v1/accounts", `{}`)
	require.Equal(t, http.StatusCreated, status)
	accountID := body["account"].(map[string]any)["id"].(string)

	status, _ = customer.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/deposit", `{"amount":"150.00"}`)
	require.Equal(t, http.StatusOK, status)

	status, body = customer.do(http.MethodPost, "/api/v1/loans", `{"principal_amount":"1000","term_months":12}`)
	require.Equal(t, http.StatusCreated, status)
	loanID := body["loan"].(map[string]any)["id"].(string)

	status, _ = customer.do(http.MethodPost, "/api/v1/loans/"+loanID+"/approve", ``)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = officer.do(http.MethodPost, "/api/v1/loans/"+loanID+"/approve", ``)
	require.Equal(t, http.StatusOK, status)
	status, body = officer.do(http.MethodPost, "/api/v1/loans/"+loanID+"/disburse", `{"account_id":"`+accountID+`"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1150.00", body["account"].(map[string]any)["balance"])

	status, body = customer.do(http.MethodPost, "/api/v1/loans/"+loanID+"/repay", `{"account_id":"`+accountID+`","amount":"1066.19"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", body["loan"].(map[string]any)["status"])
	assert.Equal(t, "83.81", body["account"].(map[string]any)["balance"])

	status, body = customer.do(http.MethodGet, "/api/v1/transactions?limit=10", ``)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["pagination"].(map[string]any)["total"])

	status, _ = customer.do(http.MethodPatch, "/api/v1/accounts/"+accountID+"/status", `{"status":"frozen"}`)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = officer.do(http.MethodPatch, "/api/v1/accounts/"+accountID+"/status", `{"status":"frozen","reason":"kyc review"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "frozen", body["account"].(map[string]any)["status"])

	status, body = customer.do(http.MethodPost, "/api/v1/accounts/"+accountID+"/withdraw", `{"amount":"1.00"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "account is frozen", body["details"].(map[string]any)["reason"])
}

func TestLogoutRevokesAccess(t *testing.T) {
	app := newTestServer(t)
	c := &client{t: t, app: app}
	c.login(adminEmail, adminPassword)

	status, body := c.do(http.MethodGet, "/api/v1/me", ``)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin", body["user"].(map[string]any)["role"])

	status, _ = c.do(http.MethodPost, "/api/v1/auth/logout", ``)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodGet, "/api/v1/me", ``)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	app := newTestServer(t)
	c := &client{t: t, app: app}

	status, _ := c.do(http.MethodGet, "/api/v1/accounts", ``)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthz(t *testing.T) {
	app := newTestServer(t)
	c := &client{t: t, app: app}

	status, body := c.do(http.MethodGet, "/healthz", ``)
	require.Equal(t, http.StatusOK, status)
	checks := body["status"].(map[string]any)
	assert.Equal(t, "memory", checks["postgres"])
	assert.Equal(t, "ok", checks["redis"])
}

func TestProductionRequiresDatabase(t *testing.T) {
	_, err := New(config.Config{AppEnv: "production"}, nil, nil, logging.Discard())
	assert.Error(t, err)
}
