package savings

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/logging"
)

func setupHandlerApp(t *testing.T, userID string) (*fiber.App, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc)

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(httpx.LocalUserID, userID)
		return c.Next()
	})
	app.Post("/accounts", h.Open)
	app.Get("/accounts/:accountId", h.Get)
	app.Post("/accounts/:accountId/deposit", h.Deposit)
	app.Post("/accounts/:accountId/withdraw", h.Withdraw)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func TestHandlerDepositAndWithdraw(t *testing.T) {
	owner := uuid.NewString()
	app, _ := setupHandlerApp(t, owner)

	status, body := doJSON(t, app, http.MethodPost, "/accounts", `{"account_type":"regular"}`)
	require.Equal(t, http.StatusCreated, status)
	accountID := body["account"].(map[string]any)["id"].(string)

	status, body = doJSON(t, app, http.MethodPost, "/accounts/"+accountID+"/deposit", `{"amount":"120.25"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "120.25", body["account"].(map[string]any)["balance"])
	assert.Equal(t, "deposit", body["transaction"].(map[string]any)["transaction_type"])

	status, body = doJSON(t, app, http.MethodPost, "/accounts/"+accountID+"/withdraw", `{"amount":20.25,"description":"rent"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "100.00", body["account"].(map[string]any)["balance"])
	assert.Equal(t, "rent", body["transaction"].(map[string]any)["description"])
}

func TestHandlerRendersInsufficientFunds(t *testing.T) {
	owner := uuid.NewString()
	app, _ := setupHandlerApp(t, owner)

	_, body := doJSON(t, app, http.MethodPost, "/accounts", ``)
	accountID := body["account"].(map[string]any)["id"].(string)

	status, body := doJSON(t, app, http.MethodPost, "/accounts/"+accountID+"/withdraw", `{"amount":"10"}`)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "insufficient_funds", body["title"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "0.00", details["current_balance"])
	assert.Equal(t, "10.00", details["requested_amount"])
}

func TestHandlerRejectsMalformedAmounts(t *testing.T) {
	owner := uuid.NewString()
	app, _ := setupHandlerApp(t, owner)

	_, body := doJSON(t, app, http.MethodPost, "/accounts", ``)
	accountID := body["account"].(map[string]any)["id"].(string)

	for _, payload := range []string{`{}`, `{"amount":"1.001"}`, `{"amount":"abc"}`, `{"amount":0}`, `{"amount":"1e20"}`} {
		status, _ := doJSON(t, app, http.MethodPost, "/accounts/"+accountID+"/deposit", payload)
		assert.Equal(t, http.StatusBadRequest, status, payload)
	}
}

func TestHandlerHidesOtherUsersAccounts(t *testing.T) {
	app, svc := setupHandlerApp(t, uuid.NewString())
	other, err := svc.Open(t.Context(), OpenInput{OwnerID: uuid.NewString()})
	require.NoError(t, err)

	status, body := doJSON(t, app, http.MethodGet, "/accounts/"+other.ID, ``)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "account_not_available", body["title"])
}
