package loans

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identity"
	"github.com/susubank/susubank/internal/logging"
)

// setupLoanApp routes every request as the user named in X-Test-User with the
// role in X-Test-Role.
func setupLoanApp(f *fixture) *fiber.App {
	h := NewHandler(f.loans)
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	app.Use(func(c *fiber.Ctx) error {
		// Header values alias the request buffer; the store keeps ids past the request.
		c.Locals(httpx.LocalUserID, utils.CopyString(c.Get("X-Test-User")))
		c.Locals(httpx.LocalRole, utils.CopyString(c.Get("X-Test-Role")))
		return c.Next()
	})
	app.Post("/loans", h.Apply)
	app.Get("/loans", h.List)
	app.Get("/loans/:loanId", h.Get)
	app.Post("/loans/:loanId/approve", h.Approve)
	app.Post("/loans/:loanId/reject", h.Reject)
	app.Post("/loans/:loanId/disburse", h.Disburse)
	app.Post("/loans/:loanId/repay", h.Repay)
	app.Post("/loans/:loanId/default", h.MarkDefaulted)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, user, role, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", user)
	req.Header.Set("X-Test-Role", role)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	return resp.StatusCode, decoded
}

func TestHandlerLoanLifecycle(t *testing.T) {
	f := newFixture(t)
	app := setupLoanApp(f)
	customer := identity.RoleCustomer
	officer := identity.RoleLoanOfficer

	status, body := do(t, app, http.MethodPost, "/loans", f.borrower, customer,
		`{"principal_amount":"1000","term_months":12,"purpose":"sewing machine"}`)
	require.Equal(t, http.StatusCreated, status)
	loan := body["loan"].(map[string]any)
	loanID := loan["id"].(string)
	assert.Equal(t, "1066.19", loan["total_amount"])
	assert.Equal(t, "88.85", loan["monthly_payment"])
	assert.Equal(t, "pending", loan["status"])

	status, body = do(t, app, http.MethodPost, "/loans/"+loanID+"/approve", f.officer, officer, ``)
	require.Equal(t, http.StatusOK, status)
	approved := body["loan"].(map[string]any)
	assert.Equal(t, f.borrower, approved["borrower_id"])
	assert.Equal(t, f.officer, approved["approved_by"])

	status, body = do(t, app, http.MethodPost, "/loans/"+loanID+"/approve", f.officer, officer, ``)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "approved", body["details"].(map[string]any)["status"])

	status, body = do(t, app, http.MethodPost, "/loans/"+loanID+"/disburse", f.officer, officer,
		`{"account_id":"`+f.account.ID+`"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000.00", body["account"].(map[string]any)["balance"])
	assert.Equal(t, "active", body["loan"].(map[string]any)["status"])

	status, body = do(t, app, http.MethodPost, "/loans/"+loanID+"/repay", f.borrower, customer,
		`{"account_id":"`+f.account.ID+`","amount":"88.85"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "977.34", body["loan"].(map[string]any)["remaining_balance"])
	assert.Equal(t, "loan_repayment", body["transaction"].(map[string]any)["transaction_type"])

	status, body = do(t, app, http.MethodGet, "/loans?status=active", f.borrower, customer, ``)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
}

func TestHandlerGetScopes(t *testing.T) {
	f := newFixture(t)
	app := setupLoanApp(f)
	loan := f.activeLoan(t, "20.00")

	status, _ := do(t, app, http.MethodGet, "/loans/"+loan.ID, uuid.NewString(), identity.RoleCustomer, ``)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodGet, "/loans/"+loan.ID, uuid.NewString(), identity.RoleAdmin, ``)
	assert.Equal(t, http.StatusOK, status)
}

func TestHandlerRejectsBadApplications(t *testing.T) {
	f := newFixture(t)
	app := setupLoanApp(f)

	for _, payload := range []string{
		`{"term_months":12}`,
		`{"principal_amount":"10.555","term_months":12}`,
		`{"principal_amount":"100","term_months":0}`,
		`{"principal_amount":"100","term_months":12,"interest_rate":"150"}`,
		`{"principal_amount":"-5","term_months":12}`,
		`{"principal_amount":"1e20","term_months":12}`,
	} {
		status, _ := do(t, app, http.MethodPost, "/loans", f.borrower, identity.RoleCustomer, payload)
		assert.Equal(t, http.StatusBadRequest, status, payload)
	}
}
