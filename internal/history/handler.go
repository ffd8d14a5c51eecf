package history

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identity"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/savings"
)

const dateOnly = "2006-01-02"

// Handler exposes transaction history endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a history handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type listParams struct {
	AccountID string `query:"account_id"`
	LoanID    string `query:"loan_id"`
	Type      string `query:"type" validate:"omitempty,oneof=deposit withdrawal loan_disbursement loan_repayment"`
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
}

// List returns a page of the caller's transactions. Staff see every owner.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var params listParams
	if err := c.QueryParser(&params); err != nil {
		return httpx.ErrBodyParseFailed
	}
	if err := httpx.ValidateStruct(&params); err != nil {
		return err
	}
	page, limit, err := httpx.ParsePage(c)
	if err != nil {
		return err
	}
	from, err := parseDate("start_date", params.StartDate, false)
	if err != nil {
		return err
	}
	to, err := parseDate("end_date", params.EndDate, true)
	if err != nil {
		return err
	}

	scope := uid
	if identity.IsStaff(httpx.Role(c)) {
		scope = ""
	}
	res, err := h.service.List(c.UserContext(), Query{
		ActorID:   scope,
		AccountID: params.AccountID,
		LoanID:    params.LoanID,
		Type:      ledger.TransactionType(params.Type),
		From:      from,
		To:        to,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return err
	}

	out := make([]savings.TransactionResponse, 0, len(res.Transactions))
	for _, t := range res.Transactions {
		out = append(out, savings.NewTransactionResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": out,
		"pagination": fiber.Map{
			"total":       res.Total,
			"page":        res.Page,
			"limit":       res.Limit,
			"total_pages": res.TotalPages,
		},
	})
}

// Get returns one transaction touching the caller's accounts or loans.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	scope := uid
	if identity.IsStaff(httpx.Role(c)) {
		scope = ""
	}
	t, err := h.service.Get(c.UserContext(), c.Params("transactionId"), scope)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transaction": savings.NewTransactionResponse(t)})
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseDate(field, value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnly, value)
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "'"+field+"' must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
