package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susubank/susubank/internal/money"
)

// AccountStatus is the lifecycle state of a savings account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// DefaultAccountType is used when an account is opened without a type tag.
const DefaultAccountType = "regular"

// Account is a savings account row.
type Account struct {
	ID            string
	OwnerID       string
	AccountNumber string
	Balance       money.Amount
	Status        AccountStatus
	AccountType   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanRejected  LoanStatus = "rejected"
	LoanDefaulted LoanStatus = "defaulted"
)

// Loan is a loan row. RemainingBalance starts at TotalAmount, not Principal.
type Loan struct {
	ID               string
	BorrowerID       string
	LoanNumber       string
	Principal        money.Amount
	InterestRate     decimal.Decimal
	TermMonths       int
	TotalAmount      money.Amount
	RemainingBalance money.Amount
	MonthlyPayment   money.Amount
	Purpose          string
	Status           LoanStatus
	ApprovedBy       *string
	ApprovedAt       *time.Time
	DisbursedAt      *time.Time
	DueDate          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TransactionType tags a money movement.
type TransactionType string

const (
	TypeDeposit          TransactionType = "deposit"
	TypeWithdrawal       TransactionType = "withdrawal"
	TypeLoanDisbursement TransactionType = "loan_disbursement"
	TypeLoanRepayment    TransactionType = "loan_repayment"
)

// Credits reports whether the type increases the referenced account balance.
func (t TransactionType) Credits() bool {
	return t == TypeDeposit || t == TypeLoanDisbursement
}

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeLoanDisbursement, TypeLoanRepayment:
		return true
	}
	return false
}

// TransactionCompleted is the only status the ledger writes.
const TransactionCompleted = "completed"

// Transaction is an immutable ledger record. At least one of AccountID and
// LoanID is set.
type Transaction struct {
	ID            string
	AccountID     *string
	LoanID        *string
	Type          TransactionType
	Amount        money.Amount
	BalanceBefore money.Amount
	BalanceAfter  money.Amount
	Description   string
	Status        string
	CreatedAt     time.Time
}

// AuditEntry records a state change made inside a unit of work.
type AuditEntry struct {
	ID          string
	PerformedBy string
	Action      string
	EntityType  string
	EntityID    string
	OldValues   map[string]any
	NewValues   map[string]any
	CreatedAt   time.Time
}

// NewAuditEntry stamps a new audit entry with a fresh id.
func NewAuditEntry(performedBy, action, entityType, entityID string, oldValues, newValues map[string]any, at time.Time) AuditEntry {
	return AuditEntry{
		ID:          uuid.NewString(),
		PerformedBy: performedBy,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		OldValues:   oldValues,
		NewValues:   newValues,
		CreatedAt:   at,
	}
}

// TransactionQuery filters a history listing. Empty slices and zero values do
// not constrain the result. AccountIDs and LoanIDs are OR-ed together unless
// MatchBoth is set, in which case a record must reference one of each.
type TransactionQuery struct {
	AccountIDs []string
	LoanIDs    []string
	MatchBoth  bool
	Type       TransactionType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Page is one slice of a listing together with the unpaginated total.
type Page struct {
	Transactions []Transaction
	Total        int
}
