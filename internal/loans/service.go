// Package loans runs the loan lifecycle: application, review, disbursement
// into a savings account, repayment and default.
package loans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susubank/susubank/internal/amortization"
	"github.com/susubank/susubank/internal/identifier"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/logging"
	"github.com/susubank/susubank/internal/money"
	"github.com/susubank/susubank/internal/notification"
	"github.com/susubank/susubank/internal/savings"
)

// LoanNumberPrefix starts every loan number.
const LoanNumberPrefix = "LOAN"

// DefaultInterestRate is the annual percentage applied when an application
// does not name one.
var DefaultInterestRate = decimal.NewFromInt(12)

var maxInterestRate = decimal.NewFromInt(100)

// Service wires loan state changes to the ledger store.
type Service struct {
	store    ledger.Store
	ids      *identifier.Generator
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a loan service.
func NewService(store ledger.Store, ids *identifier.Generator, notifier notification.Notifier, logger *slog.Logger) *Service {
	if ids == nil {
		ids = identifier.New()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:    store,
		ids:      ids,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApplyInput captures a loan application. A nil InterestRate selects
// DefaultInterestRate.
type ApplyInput struct {
	BorrowerID   string
	Principal    money.Amount
	InterestRate *decimal.Decimal
	TermMonths   int
	Purpose      string
}

// DecisionInput captures an officer decision on a loan.
type DecisionInput struct {
	LoanID  string
	ActorID string
	Reason  string
}

// DisburseInput names the borrower account that receives the principal.
type DisburseInput struct {
	LoanID    string
	ActorID   string
	AccountID string
}

// RepayInput captures a repayment by the borrower from one of their accounts.
type RepayInput struct {
	LoanID    string
	ActorID   string
	AccountID string
	Amount    money.Amount
}

// Movement is the outcome of an operation that moved money.
type Movement struct {
	Loan        ledger.Loan
	Account     ledger.Account
	Transaction ledger.Transaction
}

// Apply records a pending loan with its repayment schedule fixed up front.
func (s *Service) Apply(ctx context.Context, input ApplyInput) (ledger.Loan, error) {
	if !input.Principal.IsPositive() || !input.Principal.WithinLimit() {
		return ledger.Loan{}, ledger.ErrInvalidAmount
	}
	rate := DefaultInterestRate
	if input.InterestRate != nil {
		rate = *input.InterestRate
	}
	if input.TermMonths < 1 {
		return ledger.Loan{}, fmt.Errorf("%w: term must be at least 1 month", ledger.ErrInvalidLoanTerms)
	}
	if rate.IsNegative() || rate.GreaterThan(maxInterestRate) {
		return ledger.Loan{}, fmt.Errorf("%w: interest rate must be between 0 and 100", ledger.ErrInvalidLoanTerms)
	}
	schedule, err := amortization.Compute(input.Principal, rate, input.TermMonths)
	if err != nil {
		return ledger.Loan{}, fmt.Errorf("%w: %v", ledger.ErrInvalidLoanTerms, err)
	}
	if !schedule.TotalAmount.WithinLimit() {
		return ledger.Loan{}, fmt.Errorf("%w: total repayable exceeds %s", ledger.ErrInvalidLoanTerms, money.Limit)
	}

	for attempt := 0; attempt < s.ids.MaxAttempts(); attempt++ {
		var loan ledger.Loan
		err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			number, err := s.ids.Generate(ctx, LoanNumberPrefix, tx.LoanNumberExists)
			if err != nil {
				return err
			}
			now := s.now()
			loan = ledger.Loan{
				ID:               uuid.NewString(),
				BorrowerID:       input.BorrowerID,
				LoanNumber:       number,
				Principal:        input.Principal,
				InterestRate:     rate,
				TermMonths:       input.TermMonths,
				TotalAmount:      schedule.TotalAmount,
				RemainingBalance: schedule.TotalAmount,
				MonthlyPayment:   schedule.MonthlyPayment,
				Purpose:          input.Purpose,
				Status:           ledger.LoanPending,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.InsertLoan(ctx, loan); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, ledger.NewAuditEntry(input.BorrowerID, "loan.applied", "loan", loan.ID, nil,
				map[string]any{"status": string(loan.Status), "principal_amount": loan.Principal.String(), "loan_number": number}, now))
		})
		switch {
		case err == nil:
			s.logger.Info("loans.apply completed",
				slog.String("loan_id", loan.ID),
				slog.String("borrower_id", loan.BorrowerID),
				slog.String("principal", loan.Principal.String()),
				slog.String("total", loan.TotalAmount.String()),
			)
			return loan, nil
		case errors.Is(err, ledger.ErrDuplicateNumber):
			continue
		case errors.Is(err, identifier.ErrExhausted):
			return ledger.Loan{}, fmt.Errorf("%w: %v", ledger.ErrIdentifierCollision, err)
		default:
			return ledger.Loan{}, err
		}
	}
	return ledger.Loan{}, ledger.ErrIdentifierCollision
}

// Approve moves a pending loan to approved and records the reviewer.
func (s *Service) Approve(ctx context.Context, input DecisionInput) (ledger.Loan, error) {
	loan, err := s.transition(ctx, input, "approve", ledger.LoanPending, ledger.LoanApproved, func(l *ledger.Loan, now time.Time) {
		approver := input.ActorID
		l.ApprovedBy = &approver
		l.ApprovedAt = &now
	})
	if err != nil {
		return ledger.Loan{}, err
	}
	s.notify(ctx, notification.KindLoanApproved, loan, fmt.Sprintf("Your loan %s has been approved", loan.LoanNumber))
	return loan, nil
}

// Reject closes a pending application.
func (s *Service) Reject(ctx context.Context, input DecisionInput) (ledger.Loan, error) {
	loan, err := s.transition(ctx, input, "reject", ledger.LoanPending, ledger.LoanRejected, nil)
	if err != nil {
		return ledger.Loan{}, err
	}
	s.notify(ctx, notification.KindLoanRejected, loan, fmt.Sprintf("Your loan application %s has been rejected", loan.LoanNumber))
	return loan, nil
}

// MarkDefaulted flags an active loan whose borrower stopped paying. The
// outstanding balance is kept.
func (s *Service) MarkDefaulted(ctx context.Context, input DecisionInput) (ledger.Loan, error) {
	loan, err := s.transition(ctx, input, "default", ledger.LoanActive, ledger.LoanDefaulted, nil)
	if err != nil {
		return ledger.Loan{}, err
	}
	s.notify(ctx, notification.KindLoanDefaulted, loan,
		fmt.Sprintf("Your loan %s is in default with %s outstanding", loan.LoanNumber, loan.RemainingBalance))
	return loan, nil
}

func (s *Service) transition(ctx context.Context, input DecisionInput, op string, from, to ledger.LoanStatus, apply func(*ledger.Loan, time.Time)) (ledger.Loan, error) {
	var loan ledger.Loan
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		loan, err = s.lockLoan(ctx, tx, input.LoanID, "")
		if err != nil {
			return err
		}
		if loan.Status != from {
			return &ledger.InvalidLoanStateError{LoanID: loan.ID, Status: loan.Status, Operation: op}
		}

		now := s.now()
		loan.Status = to
		loan.UpdatedAt = now
		if apply != nil {
			apply(&loan, now)
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		newValues := map[string]any{"status": string(to)}
		if input.Reason != "" {
			newValues["reason"] = input.Reason
		}
		return tx.AppendAudit(ctx, ledger.NewAuditEntry(input.ActorID, "loan."+op, "loan", loan.ID,
			map[string]any{"status": string(from)}, newValues, now))
	})
	if err != nil {
		return ledger.Loan{}, err
	}
	s.logger.Info("loans."+op+" completed",
		slog.String("loan_id", loan.ID),
		slog.String("status", string(loan.Status)),
		slog.String("performed_by", input.ActorID),
	)
	return loan, nil
}

// Disburse pays the principal of an approved loan into an active account
// owned by the borrower and activates the loan.
func (s *Service) Disburse(ctx context.Context, input DisburseInput) (Movement, error) {
	var out Movement
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		loan, err := s.lockLoan(ctx, tx, input.LoanID, "")
		if err != nil {
			return err
		}
		if loan.Status != ledger.LoanApproved {
			return &ledger.InvalidLoanStateError{LoanID: loan.ID, Status: loan.Status, Operation: "disburse"}
		}
		acct, err := savings.LockAccount(ctx, tx, input.AccountID, loan.BorrowerID)
		if err != nil {
			return err
		}

		now := s.now()
		loanID := loan.ID
		out.Account, out.Transaction, err = savings.Post(ctx, tx, acct, savings.Entry{
			Type:        ledger.TypeLoanDisbursement,
			Amount:      loan.Principal,
			LoanID:      &loanID,
			Description: "Loan disbursement - " + loan.LoanNumber,
			At:          now,
		})
		if err != nil {
			return err
		}

		due := now.AddDate(0, loan.TermMonths, 0)
		loan.Status = ledger.LoanActive
		loan.DisbursedAt = &now
		loan.DueDate = &due
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		out.Loan = loan

		return tx.AppendAudit(ctx, ledger.NewAuditEntry(input.ActorID, "loan.disburse", "loan", loan.ID,
			map[string]any{"status": string(ledger.LoanApproved)},
			map[string]any{"status": string(ledger.LoanActive), "account_id": acct.ID, "transaction_id": out.Transaction.ID}, now))
	})
	if err != nil {
		return Movement{}, err
	}

	s.logger.Info("loans.disburse completed",
		slog.String("loan_id", out.Loan.ID),
		slog.String("account_id", out.Account.ID),
		slog.String("transaction_id", out.Transaction.ID),
		slog.String("amount", out.Transaction.Amount.String()),
	)
	s.notify(ctx, notification.KindLoanDisbursed, out.Loan,
		fmt.Sprintf("%s from loan %s was paid into account %s", out.Transaction.Amount, out.Loan.LoanNumber, out.Account.AccountNumber))
	return out, nil
}

// Repay moves money from the borrower's account onto an active loan. A
// payment that covers the remaining balance completes the loan; any excess is
// still debited and the remaining balance is held at zero.
func (s *Service) Repay(ctx context.Context, input RepayInput) (Movement, error) {
	if !input.Amount.IsPositive() {
		return Movement{}, ledger.ErrInvalidAmount
	}

	var out Movement
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		loan, err := s.lockLoan(ctx, tx, input.LoanID, input.ActorID)
		if err != nil {
			return err
		}
		if loan.Status != ledger.LoanActive {
			return &ledger.InvalidLoanStateError{LoanID: loan.ID, Status: loan.Status, Operation: "repay"}
		}
		acct, err := savings.LockAccount(ctx, tx, input.AccountID, loan.BorrowerID)
		if err != nil {
			return err
		}

		now := s.now()
		loanID := loan.ID
		out.Account, out.Transaction, err = savings.Post(ctx, tx, acct, savings.Entry{
			Type:        ledger.TypeLoanRepayment,
			Amount:      input.Amount,
			LoanID:      &loanID,
			Description: "Loan repayment - " + loan.LoanNumber,
			At:          now,
		})
		if err != nil {
			return err
		}

		previous := loan.RemainingBalance
		remaining := previous.Sub(input.Amount)
		if !remaining.IsPositive() {
			remaining = money.Zero
			loan.Status = ledger.LoanCompleted
		}
		loan.RemainingBalance = remaining
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		out.Loan = loan

		return tx.AppendAudit(ctx, ledger.NewAuditEntry(input.ActorID, "loan.repay", "loan", loan.ID,
			map[string]any{"remaining_balance": previous.String()},
			map[string]any{"remaining_balance": remaining.String(), "status": string(loan.Status), "transaction_id": out.Transaction.ID}, now))
	})
	if err != nil {
		s.logger.Warn("loans.repay rejected",
			slog.String("loan_id", input.LoanID),
			slog.String("amount", input.Amount.String()),
			slog.Any("error", err),
		)
		return Movement{}, err
	}

	s.logger.Info("loans.repay completed",
		slog.String("loan_id", out.Loan.ID),
		slog.String("transaction_id", out.Transaction.ID),
		slog.String("amount", out.Transaction.Amount.String()),
		slog.String("remaining", out.Loan.RemainingBalance.String()),
	)
	if out.Loan.Status == ledger.LoanCompleted {
		s.notify(ctx, notification.KindLoanCompleted, out.Loan, fmt.Sprintf("Your loan %s is fully repaid", out.Loan.LoanNumber))
	}
	return out, nil
}

// Get returns a loan visible to actorID. An empty actorID skips the
// ownership check.
func (s *Service) Get(ctx context.Context, loanID, actorID string) (ledger.Loan, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && actorID != "" && loan.BorrowerID != actorID) {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}
	return loan, err
}

// ListByBorrower returns the borrower's loans, newest first. An empty status
// lists every loan.
func (s *Service) ListByBorrower(ctx context.Context, borrowerID string, status ledger.LoanStatus) ([]ledger.Loan, error) {
	return s.store.ListLoansByBorrower(ctx, borrowerID, status)
}

func (s *Service) lockLoan(ctx context.Context, tx ledger.Tx, loanID, borrowerID string) (ledger.Loan, error) {
	loan, err := tx.GetLoanForUpdate(ctx, loanID)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}
	if err != nil {
		return ledger.Loan{}, err
	}
	if borrowerID != "" && loan.BorrowerID != borrowerID {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}
	return loan, nil
}

func (s *Service) notify(ctx context.Context, kind string, loan ledger.Loan, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		RecipientID: loan.BorrowerID,
		LoanID:      loan.ID,
		LoanNumber:  loan.LoanNumber,
		LoanStatus:  string(loan.Status),
		Outstanding: loan.RemainingBalance,
		Body:        body,
	}); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", kind), slog.String("loan_id", loan.ID), slog.Any("error", err))
	}
}
