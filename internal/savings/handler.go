package savings

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identity"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/money"
)

// Handler exposes savings account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a savings HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	AccountType string `json:"account_type" validate:"omitempty,max=32,alphanum"`
}

type mutationRequest struct {
	Amount      json.Number `json:"amount" validate:"required,money"`
	Description string      `json:"description" validate:"max=255"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active frozen closed"`
	Reason string `json:"reason" validate:"max=255"`
}

// AccountResponse is the wire shape of an account.
type AccountResponse struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"owner_id"`
	AccountNumber string       `json:"account_number"`
	Balance       money.Amount `json:"balance"`
	AccountType   string       `json:"account_type"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TransactionResponse is the wire shape of a ledger transaction.
type TransactionResponse struct {
	ID            string       `json:"id"`
	AccountID     *string      `json:"account_id,omitempty"`
	LoanID        *string      `json:"loan_id,omitempty"`
	Type          string       `json:"transaction_type"`
	Amount        money.Amount `json:"amount"`
	BalanceBefore money.Amount `json:"balance_before"`
	BalanceAfter  money.Amount `json:"balance_after"`
	Description   string       `json:"description"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewAccountResponse converts an account for the wire.
func NewAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		AccountType:   a.AccountType,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// NewTransactionResponse converts a transaction for the wire.
func NewTransactionResponse(t ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		AccountID:     t.AccountID,
		LoanID:        t.LoanID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Description:   t.Description,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
	}
}

// Open creates an account for the authenticated user.
func (h *Handler) Open(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req openRequest
	if len(c.Body()) > 0 {
		if err := httpx.ParseBody(c, &req); err != nil {
			return err
		}
	}
	acct, err := h.service.Open(c.UserContext(), OpenInput{OwnerID: uid, AccountType: req.AccountType})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"account": NewAccountResponse(acct)})
}

// List returns the authenticated user's accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	accounts, err := h.service.ListByOwner(c.UserContext(), uid)
	if err != nil {
		return err
	}
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, NewAccountResponse(a))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out, "count": len(out)})
}

// Get returns an account. Owners see their own accounts; staff see any account.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	scope := uid
	if identity.IsStaff(httpx.Role(c)) {
		scope = ""
	}
	acct, err := h.service.Get(c.UserContext(), c.Params("accountId"), scope)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"account": NewAccountResponse(acct)})
}

// Deposit credits one of the authenticated user's accounts.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.mutate(c, h.service.Deposit)
}

// Withdraw debits one of the authenticated user's accounts.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.mutate(c, h.service.Withdraw)
}

func (h *Handler) mutate(c *fiber.Ctx, op func(context.Context, MutationInput) (Posting, error)) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req mutationRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	amount, err := money.Parse(req.Amount.String())
	if err != nil {
		return ledger.ErrInvalidAmount
	}
	res, err := op(c.UserContext(), MutationInput{
		AccountID:   c.Params("accountId"),
		ActorID:     uid,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":     NewAccountResponse(res.Account),
		"transaction": NewTransactionResponse(res.Transaction),
	})
}

// ChangeStatus freezes, reactivates or closes an account. Officer only.
func (h *Handler) ChangeStatus(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	acct, err := h.service.ChangeStatus(c.UserContext(), StatusChangeInput{
		AccountID: c.Params("accountId"),
		ActorID:   uid,
		Status:    ledger.AccountStatus(req.Status),
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"account": NewAccountResponse(acct)})
}
