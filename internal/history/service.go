// Package history serves read-only views of the transaction log.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/susubank/susubank/internal/ledger"
)

// Service lists and fetches transactions visible to an actor.
type Service struct {
	store ledger.Reader
}

// NewService constructs a history service.
func NewService(store ledger.Reader) *Service {
	return &Service{store: store}
}

// Query filters a listing. An empty ActorID lists across every owner; any
// other value restricts results to that actor's accounts and loans.
type Query struct {
	ActorID   string
	AccountID string
	LoanID    string
	Type      ledger.TransactionType
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// Result is one page of transactions, newest first.
type Result struct {
	Transactions []ledger.Transaction
	Total        int
	Page         int
	Limit        int
	TotalPages   int
}

// List returns the transactions matching q. Naming an account or loan the
// actor does not own fails as not found.
func (s *Service) List(ctx context.Context, q Query) (Result, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	result := Result{Transactions: []ledger.Transaction{}, Page: q.Page, Limit: q.Limit}

	lq := ledger.TransactionQuery{
		Type:   q.Type,
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	}

	if q.AccountID != "" {
		if err := s.checkAccount(ctx, q.AccountID, q.ActorID); err != nil {
			return Result{}, err
		}
		lq.AccountIDs = []string{q.AccountID}
	}
	if q.LoanID != "" {
		if err := s.checkLoan(ctx, q.LoanID, q.ActorID); err != nil {
			return Result{}, err
		}
		lq.LoanIDs = []string{q.LoanID}
	}
	lq.MatchBoth = q.AccountID != "" && q.LoanID != ""

	if q.AccountID == "" && q.LoanID == "" && q.ActorID != "" {
		accounts, err := s.store.ListAccountsByOwner(ctx, q.ActorID)
		if err != nil {
			return Result{}, err
		}
		loans, err := s.store.ListLoansByBorrower(ctx, q.ActorID, "")
		if err != nil {
			return Result{}, err
		}
		if len(accounts) == 0 && len(loans) == 0 {
			return result, nil
		}
		for _, a := range accounts {
			lq.AccountIDs = append(lq.AccountIDs, a.ID)
		}
		for _, l := range loans {
			lq.LoanIDs = append(lq.LoanIDs, l.ID)
		}
	}

	page, err := s.store.ListTransactions(ctx, lq)
	if err != nil {
		return Result{}, err
	}
	result.Transactions = page.Transactions
	result.Total = page.Total
	result.TotalPages = (page.Total + q.Limit - 1) / q.Limit
	return result, nil
}

// Get returns a transaction if it touches one of the actor's accounts or
// loans. An empty actorID skips the check.
func (s *Service) Get(ctx context.Context, transactionID, actorID string) (ledger.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	if actorID == "" {
		return t, nil
	}
	if t.AccountID != nil {
		acct, err := s.store.GetAccount(ctx, *t.AccountID)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return ledger.Transaction{}, err
		}
		if err == nil && acct.OwnerID == actorID {
			return t, nil
		}
	}
	if t.LoanID != nil {
		loan, err := s.store.GetLoan(ctx, *t.LoanID)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return ledger.Transaction{}, err
		}
		if err == nil && loan.BorrowerID == actorID {
			return t, nil
		}
	}
	return ledger.Transaction{}, ledger.ErrTransactionNotFound
}

func (s *Service) checkAccount(ctx context.Context, accountID, actorID string) error {
	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && actorID != "" && acct.OwnerID != actorID) {
		return &ledger.AccountNotAvailableError{AccountID: accountID, Reason: "account not found"}
	}
	return err
}

func (s *Service) checkLoan(ctx context.Context, loanID, actorID string) error {
	loan, err := s.store.GetLoan(ctx, loanID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && actorID != "" && loan.BorrowerID != actorID) {
		return ledger.ErrLoanNotFound
	}
	return err
}
