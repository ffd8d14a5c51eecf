// Package ledger holds the persisted ledger model and the transactional store
// contract that every balance mutation runs through.
package ledger

import "context"

// Store is the transactional persistence behind accounts, loans and their
// transaction log.
type Store interface {
	Reader

	// WithTx runs fn inside one atomic unit of work. If fn returns an error,
	// or ctx ends before commit, nothing fn wrote becomes visible.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader serves committed state outside a unit of work.
type Reader interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID string) ([]Account, error)
	GetLoan(ctx context.Context, id string) (Loan, error)
	ListLoansByBorrower(ctx context.Context, borrowerID string, status LoanStatus) ([]Loan, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, q TransactionQuery) (Page, error)
}

// Tx is the view of the store inside a unit of work. The ...ForUpdate reads
// hold an exclusive lock on the row until the unit ends; callers lock a loan
// before its account.
type Tx interface {
	GetAccountForUpdate(ctx context.Context, id string) (Account, error)
	GetLoanForUpdate(ctx context.Context, id string) (Loan, error)

	InsertAccount(ctx context.Context, a Account) error
	UpdateAccount(ctx context.Context, a Account) error
	InsertLoan(ctx context.Context, l Loan) error
	UpdateLoan(ctx context.Context, l Loan) error
	InsertTransaction(ctx context.Context, t Transaction) error
	AppendAudit(ctx context.Context, e AuditEntry) error

	AccountNumberExists(ctx context.Context, number string) (bool, error)
	LoanNumberExists(ctx context.Context, number string) (bool, error)
}
