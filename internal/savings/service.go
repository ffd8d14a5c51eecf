// Package savings owns savings accounts and the balance primitive every money
// movement in the ledger goes through.
package savings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/susubank/susubank/internal/identifier"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/logging"
	"github.com/susubank/susubank/internal/money"
)

// AccountNumberPrefix starts every savings account number.
const AccountNumberPrefix = "SAV"

// Service exposes account operations backed by the ledger store.
type Service struct {
	store  ledger.Store
	ids    *identifier.Generator
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a savings service instance.
func NewService(store ledger.Store, ids *identifier.Generator, logger *slog.Logger) *Service {
	if ids == nil {
		ids = identifier.New()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, ids: ids, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// OpenInput captures data required to open an account.
type OpenInput struct {
	OwnerID     string
	AccountType string
}

// MutationInput captures a deposit or withdrawal request. When ActorID is
// set the account must belong to the actor.
type MutationInput struct {
	AccountID   string
	ActorID     string
	Amount      money.Amount
	Description string
}

// Posting is the outcome of a deposit or withdrawal.
type Posting struct {
	Account     ledger.Account
	Transaction ledger.Transaction
}

// StatusChangeInput captures an account status transition made by ActorID.
type StatusChangeInput struct {
	AccountID string
	ActorID   string
	Status    ledger.AccountStatus
	Reason    string
}

// Open provisions an empty active account with a fresh account number.
func (s *Service) Open(ctx context.Context, input OpenInput) (ledger.Account, error) {
	accountType := strings.ToLower(strings.TrimSpace(input.AccountType))
	if accountType == "" {
		accountType = ledger.DefaultAccountType
	}

	for attempt := 0; attempt < s.ids.MaxAttempts(); attempt++ {
		var opened ledger.Account
		err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			number, err := s.ids.Generate(ctx, AccountNumberPrefix, tx.AccountNumberExists)
			if err != nil {
				return err
			}
			now := s.now()
			opened = ledger.Account{
				ID:            uuid.NewString(),
				OwnerID:       input.OwnerID,
				AccountNumber: number,
				Balance:       money.Zero,
				Status:        ledger.AccountActive,
				AccountType:   accountType,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertAccount(ctx, opened); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, ledger.NewAuditEntry(input.OwnerID, "account.opened", "savings_account", opened.ID,
				nil, map[string]any{"account_number": number, "account_type": accountType}, now))
		})
		switch {
		case err == nil:
			s.logger.Info("savings.open completed",
				slog.String("account_id", opened.ID),
				slog.String("owner_id", opened.OwnerID),
				slog.String("account_type", opened.AccountType),
			)
			return opened, nil
		case errors.Is(err, ledger.ErrDuplicateNumber):
			continue
		case errors.Is(err, identifier.ErrExhausted):
			return ledger.Account{}, fmt.Errorf("%w: %v", ledger.ErrIdentifierCollision, err)
		default:
			return ledger.Account{}, err
		}
	}
	return ledger.Account{}, ledger.ErrIdentifierCollision
}

// Get returns an account visible to actorID. An empty actorID skips the
// ownership check.
func (s *Service) Get(ctx context.Context, accountID, actorID string) (ledger.Account, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && actorID != "" && acct.OwnerID != actorID) {
		return ledger.Account{}, &ledger.AccountNotAvailableError{AccountID: accountID, Reason: "account not found"}
	}
	return acct, err
}

// ListByOwner returns the owner's accounts, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	return s.store.ListAccountsByOwner(ctx, ownerID)
}

// Deposit credits an active account.
func (s *Service) Deposit(ctx context.Context, input MutationInput) (Posting, error) {
	if input.Description == "" {
		input.Description = "Deposit"
	}
	return s.apply(ctx, input, ledger.TypeDeposit)
}

// Withdraw debits an active account when its balance covers the amount.
func (s *Service) Withdraw(ctx context.Context, input MutationInput) (Posting, error) {
	if input.Description == "" {
		input.Description = "Withdrawal"
	}
	return s.apply(ctx, input, ledger.TypeWithdrawal)
}

func (s *Service) apply(ctx context.Context, input MutationInput, kind ledger.TransactionType) (Posting, error) {
	if !input.Amount.IsPositive() {
		return Posting{}, ledger.ErrInvalidAmount
	}

	var out Posting
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acct, err := LockAccount(ctx, tx, input.AccountID, input.ActorID)
		if err != nil {
			return err
		}
		out.Account, out.Transaction, err = Post(ctx, tx, acct, Entry{
			Type:        kind,
			Amount:      input.Amount,
			Description: input.Description,
			At:          s.now(),
		})
		return err
	})
	if err != nil {
		s.logger.Warn("savings."+string(kind)+" rejected",
			slog.String("account_id", input.AccountID),
			slog.String("amount", input.Amount.String()),
			slog.Any("error", err),
		)
		return Posting{}, err
	}

	s.logger.Info("savings."+string(kind)+" completed",
		slog.String("account_id", out.Account.ID),
		slog.String("transaction_id", out.Transaction.ID),
		slog.String("amount", out.Transaction.Amount.String()),
		slog.String("balance", out.Account.Balance.String()),
	)
	return out, nil
}

// ChangeStatus moves an account between active and frozen, or closes it once
// its balance is zero. Closed accounts never reopen.
func (s *Service) ChangeStatus(ctx context.Context, input StatusChangeInput) (ledger.Account, error) {
	switch input.Status {
	case ledger.AccountActive, ledger.AccountFrozen, ledger.AccountClosed:
	default:
		return ledger.Account{}, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidStatusChange, input.Status)
	}

	var updated ledger.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acct, err := tx.GetAccountForUpdate(ctx, input.AccountID)
		if errors.Is(err, ledger.ErrNotFound) {
			return &ledger.AccountNotAvailableError{AccountID: input.AccountID, Reason: "account not found"}
		}
		if err != nil {
			return err
		}
		if acct.Status == ledger.AccountClosed || acct.Status == input.Status {
			return fmt.Errorf("%w: %s to %s", ledger.ErrInvalidStatusChange, acct.Status, input.Status)
		}
		if input.Status == ledger.AccountClosed && !acct.Balance.IsZero() {
			return ledger.ErrAccountNotEmpty
		}

		previous := acct.Status
		acct.Status = input.Status
		acct.UpdatedAt = s.now()
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		updated = acct

		newValues := map[string]any{"status": string(acct.Status)}
		if input.Reason != "" {
			newValues["reason"] = input.Reason
		}
		return tx.AppendAudit(ctx, ledger.NewAuditEntry(input.ActorID, "account.status_changed", "savings_account", acct.ID,
			map[string]any{"status": string(previous)}, newValues, acct.UpdatedAt))
	})
	if err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("savings.status_change completed",
		slog.String("account_id", updated.ID),
		slog.String("status", string(updated.Status)),
		slog.String("performed_by", input.ActorID),
	)
	return updated, nil
}
