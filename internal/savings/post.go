package savings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/money"
)

// Entry describes one balance movement on a locked account.
type Entry struct {
	Type        ledger.TransactionType
	Amount      money.Amount
	LoanID      *string
	Description string
	At          time.Time
}

// LockAccount locks the account for the rest of the unit of work and checks
// that it can take part in a money movement. An empty ownerID skips the
// ownership check.
func LockAccount(ctx context.Context, tx ledger.Tx, accountID, ownerID string) (ledger.Account, error) {
	acct, err := tx.GetAccountForUpdate(ctx, accountID)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Account{}, &ledger.AccountNotAvailableError{AccountID: accountID, Reason: "account not found"}
	}
	if err != nil {
		return ledger.Account{}, err
	}
	if ownerID != "" && acct.OwnerID != ownerID {
		return ledger.Account{}, &ledger.AccountNotAvailableError{AccountID: accountID, Reason: "account not found"}
	}
	if acct.Status != ledger.AccountActive {
		return ledger.Account{}, &ledger.AccountNotAvailableError{AccountID: accountID, Reason: "account is " + string(acct.Status)}
	}
	return acct, nil
}

// Post applies e to an account already locked in tx and appends the matching
// transaction record. The returned account carries the new balance.
func Post(ctx context.Context, tx ledger.Tx, acct ledger.Account, e Entry) (ledger.Account, ledger.Transaction, error) {
	if !e.Amount.IsPositive() {
		return ledger.Account{}, ledger.Transaction{}, ledger.ErrInvalidAmount
	}
	if !e.Type.Valid() {
		return ledger.Account{}, ledger.Transaction{}, errors.New("unknown transaction type " + string(e.Type))
	}
	if acct.Status != ledger.AccountActive {
		return ledger.Account{}, ledger.Transaction{}, &ledger.AccountNotAvailableError{AccountID: acct.ID, Reason: "account is " + string(acct.Status)}
	}

	before := acct.Balance
	after := before.Add(e.Amount)
	if e.Type.Credits() && !after.WithinLimit() {
		return ledger.Account{}, ledger.Transaction{}, fmt.Errorf("%w: balance would exceed %s", ledger.ErrInvalidAmount, money.Limit)
	}
	if !e.Type.Credits() {
		if before.LessThan(e.Amount) {
			return ledger.Account{}, ledger.Transaction{}, &ledger.InsufficientFundsError{AccountID: acct.ID, Balance: before, Requested: e.Amount}
		}
		after = before.Sub(e.Amount)
	}

	acct.Balance = after
	acct.UpdatedAt = e.At
	if err := tx.UpdateAccount(ctx, acct); err != nil {
		return ledger.Account{}, ledger.Transaction{}, err
	}

	accountID := acct.ID
	record := ledger.Transaction{
		ID:            uuid.NewString(),
		AccountID:     &accountID,
		LoanID:        e.LoanID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   e.Description,
		Status:        ledger.TransactionCompleted,
		CreatedAt:     e.At,
	}
	if err := tx.InsertTransaction(ctx, record); err != nil {
		return ledger.Account{}, ledger.Transaction{}, err
	}
	return acct, record, nil
}
