package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/susubank/susubank/internal/money"
)

var (
	// ErrInvalidAmount occurs when an amount is not strictly positive or is malformed.
	ErrInvalidAmount = errors.New("amount must be greater than 0")

	// ErrAccountNotAvailable occurs when an account is missing, not owned by the
	// actor, or not active.
	ErrAccountNotAvailable = errors.New("account not found or inactive")

	// ErrInsufficientFunds occurs when a debit exceeds the account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLoanNotFound occurs when a loan does not exist or is not visible to the actor.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrInvalidLoanState occurs when an operation is attempted outside its source state.
	ErrInvalidLoanState = errors.New("invalid loan state")

	// ErrInvalidLoanTerms occurs when a loan application has an unusable term or rate.
	ErrInvalidLoanTerms = errors.New("invalid loan terms")

	// ErrIdentifierCollision occurs when no unique account or loan number could be
	// generated within the retry budget. It is transient.
	ErrIdentifierCollision = errors.New("could not allocate a unique identifier")

	// ErrPersistence occurs when a unit of work could not commit.
	ErrPersistence = errors.New("persistence failure")

	// ErrAccountExists occurs when the owner already holds a non-closed account of the type.
	ErrAccountExists = errors.New("account of this type already exists")

	// ErrInvalidStatusChange occurs on a forbidden account status transition.
	ErrInvalidStatusChange = errors.New("invalid account status change")

	// ErrAccountNotEmpty occurs when closing an account that still holds funds.
	ErrAccountNotEmpty = errors.New("account balance must be zero to close")

	// ErrTransactionNotFound occurs when a transaction does not exist or is not
	// visible to the actor.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNotFound is returned by stores for a missing row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateNumber is returned by stores when an account or loan number
	// violates its unique constraint.
	ErrDuplicateNumber = errors.New("duplicate number")
)

// InsufficientFundsError carries the figures a caller needs to explain a rejected debit.
type InsufficientFundsError struct {
	AccountID string
	Balance   money.Amount
	Requested money.Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, requested %s", e.Balance, e.Requested)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// AccountNotAvailableError explains why an account cannot take part in an operation.
type AccountNotAvailableError struct {
	AccountID string
	Reason    string
}

func (e *AccountNotAvailableError) Error() string {
	return fmt.Sprintf("account %s not available: %s", e.AccountID, e.Reason)
}

func (e *AccountNotAvailableError) Is(target error) bool { return target == ErrAccountNotAvailable }

// InvalidLoanStateError reports the state a loan was in when an operation was refused.
type InvalidLoanStateError struct {
	LoanID    string
	Status    LoanStatus
	Operation string
}

func (e *InvalidLoanStateError) Error() string {
	return fmt.Sprintf("cannot %s loan %s in status %s", e.Operation, e.LoanID, e.Status)
}

func (e *InvalidLoanStateError) Is(target error) bool { return target == ErrInvalidLoanState }

// PersistenceError wraps a storage failure. The unit of work has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Retryable reports whether the failure was a timeout or cancellation, which
// callers may retry. It never implies the write succeeded.
func (e *PersistenceError) Retryable() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled)
}

// Persistence wraps err as a PersistenceError unless it is nil or already a
// ledger error that callers can act on.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateNumber) || errors.Is(err, ErrAccountExists) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether err is transient: an identifier collision or a
// storage timeout.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrIdentifierCollision) {
		return true
	}
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Retryable()
}
