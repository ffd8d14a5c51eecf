package loans

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identity"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/money"
	"github.com/susubank/susubank/internal/savings"
)

// Handler exposes loan endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a loan handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type applyRequest struct {
	PrincipalAmount json.Number `json:"principal_amount" validate:"required,money"`
	InterestRate    json.Number `json:"interest_rate" validate:"omitempty,money"`
	TermMonths      int         `json:"term_months" validate:"required,min=1,max=480"`
	Purpose         string      `json:"purpose" validate:"max=500"`
}

type decisionRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

type disburseRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

type repayRequest struct {
	AccountID string      `json:"account_id" validate:"required"`
	Amount    json.Number `json:"amount" validate:"required,money"`
}

type loanResponse struct {
	ID               string          `json:"id"`
	BorrowerID       string          `json:"borrower_id"`
	LoanNumber       string          `json:"loan_number"`
	PrincipalAmount  money.Amount    `json:"principal_amount"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TermMonths       int             `json:"term_months"`
	TotalAmount      money.Amount    `json:"total_amount"`
	RemainingBalance money.Amount    `json:"remaining_balance"`
	MonthlyPayment   money.Amount    `json:"monthly_payment"`
	Purpose          string          `json:"purpose,omitempty"`
	Status           string          `json:"status"`
	ApprovedBy       *string         `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	DisbursedAt      *time.Time      `json:"disbursed_at,omitempty"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func newLoanResponse(l ledger.Loan) loanResponse {
	return loanResponse{
		ID:               l.ID,
		BorrowerID:       l.BorrowerID,
		LoanNumber:       l.LoanNumber,
		PrincipalAmount:  l.Principal,
		InterestRate:     l.InterestRate,
		TermMonths:       l.TermMonths,
		TotalAmount:      l.TotalAmount,
		RemainingBalance: l.RemainingBalance,
		MonthlyPayment:   l.MonthlyPayment,
		Purpose:          l.Purpose,
		Status:           string(l.Status),
		ApprovedBy:       l.ApprovedBy,
		ApprovedAt:       l.ApprovedAt,
		DisbursedAt:      l.DisbursedAt,
		DueDate:          l.DueDate,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func movementResponse(m Movement) fiber.Map {
	return fiber.Map{
		"loan":        newLoanResponse(m.Loan),
		"account":     savings.NewAccountResponse(m.Account),
		"transaction": savings.NewTransactionResponse(m.Transaction),
	}
}

// Apply submits a loan application for the authenticated user.
func (h *Handler) Apply(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req applyRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	principal, err := money.Parse(req.PrincipalAmount.String())
	if err != nil {
		return ledger.ErrInvalidAmount
	}
	input := ApplyInput{BorrowerID: uid, Principal: principal, TermMonths: req.TermMonths, Purpose: req.Purpose}
	if req.InterestRate != "" {
		rate, err := decimal.NewFromString(req.InterestRate.String())
		if err != nil {
			return ledger.ErrInvalidLoanTerms
		}
		input.InterestRate = &rate
	}
	loan, err := h.service.Apply(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"loan": newLoanResponse(loan)})
}

// List returns the authenticated user's loans, optionally filtered by status.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	loans, err := h.service.ListByBorrower(c.UserContext(), uid, ledger.LoanStatus(c.Query("status")))
	if err != nil {
		return err
	}
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, newLoanResponse(l))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"loans": out, "count": len(out)})
}

// Get returns a loan. Borrowers see their own loans; staff see any loan.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	scope := uid
	if identity.IsStaff(httpx.Role(c)) {
		scope = ""
	}
	loan, err := h.service.Get(c.UserContext(), c.Params("loanId"), scope)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"loan": newLoanResponse(loan)})
}

// Approve marks a pending loan approved. Officer only.
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.decide(c, h.service.Approve)
}

// Reject closes a pending application. Officer only.
func (h *Handler) Reject(c *fiber.Ctx) error {
	return h.decide(c, h.service.Reject)
}

// MarkDefaulted flags an active loan as defaulted. Officer only.
func (h *Handler) MarkDefaulted(c *fiber.Ctx) error {
	return h.decide(c, h.service.MarkDefaulted)
}

func (h *Handler) decide(c *fiber.Ctx, op func(context.Context, DecisionInput) (ledger.Loan, error)) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if len(c.Body()) > 0 {
		if err := httpx.ParseBody(c, &req); err != nil {
			return err
		}
	}
	loan, err := op(c.UserContext(), DecisionInput{LoanID: c.Params("loanId"), ActorID: uid, Reason: req.Reason})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"loan": newLoanResponse(loan)})
}

// Disburse pays an approved loan into the borrower's account. Officer only.
func (h *Handler) Disburse(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req disburseRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	res, err := h.service.Disburse(c.UserContext(), DisburseInput{LoanID: c.Params("loanId"), ActorID: uid, AccountID: req.AccountID})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(movementResponse(res))
}

// Repay applies a repayment from one of the borrower's accounts.
func (h *Handler) Repay(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	var req repayRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	amount, err := money.Parse(req.Amount.String())
	if err != nil {
		return ledger.ErrInvalidAmount
	}
	res, err := h.service.Repay(c.UserContext(), RepayInput{
		LoanID:    c.Params("loanId"),
		ActorID:   uid,
		AccountID: req.AccountID,
		Amount:    amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(movementResponse(res))
}
