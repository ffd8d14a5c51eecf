package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/susubank/susubank/internal/money"
)

const (
	uniqueViolation = "23505"

	constraintAccountNumber = "uq_savings_accounts_number"
	constraintOpenAccount   = "uq_savings_accounts_owner_type_open"
	constraintLoanNumber    = "uq_loans_number"
)

// Money and identifier columns are read back as text so that NUMERIC values
// never pass through a binary float on their way into money.Amount.
const (
	accountColumns = `id::text, owner_id::text, account_number, balance::text, status, account_type, created_at, updated_at`
	loanColumns    = `id::text, borrower_id::text, loan_number, principal_amount::text, interest_rate::text, term_months,
        total_amount::text, remaining_balance::text, monthly_payment::text, purpose, status, approved_by::text,
        approved_at, disbursed_at, due_date, created_at, updated_at`
	transactionColumns = `id::text, account_id::text, loan_id::text, transaction_type, amount::text, balance_before::text,
        balance_after::text, description, status, created_at`
)

// PostgresStore persists the ledger in PostgreSQL. Units of work run at READ
// COMMITTED and serialise on rows through SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithTx runs fn inside a database transaction and commits when fn succeeds.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Persistence("begin", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return Persistence("commit", err)
	}
	return nil
}

// GetAccount fetches a committed account.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	if !validID(id) {
		return Account{}, ErrNotFound
	}
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM savings_accounts WHERE id = $1`, id))
	return a, Persistence("get account", err)
}

// ListAccountsByOwner returns the owner's accounts, newest first.
func (s *PostgresStore) ListAccountsByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	if !validID(ownerID) {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM savings_accounts
        WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, Persistence("list accounts", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, Persistence("list accounts", err)
		}
		out = append(out, a)
	}
	return out, Persistence("list accounts", rows.Err())
}

// GetLoan fetches a committed loan.
func (s *PostgresStore) GetLoan(ctx context.Context, id string) (Loan, error) {
	if !validID(id) {
		return Loan{}, ErrNotFound
	}
	l, err := scanLoan(s.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	return l, Persistence("get loan", err)
}

// ListLoansByBorrower returns the borrower's loans, newest first, optionally
// narrowed to one status.
func (s *PostgresStore) ListLoansByBorrower(ctx context.Context, borrowerID string, status LoanStatus) ([]Loan, error) {
	if !validID(borrowerID) {
		return nil, nil
	}
	query := `SELECT ` + loanColumns + ` FROM loans WHERE borrower_id = $1`
	args := []any{borrowerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	rows, err := s.db.Query(ctx, query+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, Persistence("list loans", err)
	}
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, Persistence("list loans", err)
		}
		out = append(out, l)
	}
	return out, Persistence("list loans", rows.Err())
}

// GetTransaction fetches one transaction record.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	if !validID(id) {
		return Transaction{}, ErrNotFound
	}
	t, err := scanTransaction(s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	return t, Persistence("get transaction", err)
}

// ListTransactions returns matches newest first together with the total count.
func (s *PostgresStore) ListTransactions(ctx context.Context, q TransactionQuery) (Page, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var scope []string
	if ids := validIDs(q.AccountIDs); len(ids) > 0 {
		scope = append(scope, "account_id = ANY("+arg(ids)+"::uuid[])")
	}
	if ids := validIDs(q.LoanIDs); len(ids) > 0 {
		scope = append(scope, "loan_id = ANY("+arg(ids)+"::uuid[])")
	}
	join := " OR "
	if q.MatchBoth {
		if len(scope) < 2 {
			return Page{}, nil
		}
		join = " AND "
	}
	if len(scope) > 0 {
		where = append(where, "("+strings.Join(scope, join)+")")
	} else if len(q.AccountIDs) > 0 || len(q.LoanIDs) > 0 {
		return Page{}, nil
	}
	if q.Type != "" {
		where = append(where, "transaction_type = "+arg(string(q.Type)))
	}
	if q.From != nil {
		where = append(where, "created_at >= "+arg(q.From.UTC()))
	}
	if q.To != nil {
		where = append(where, "created_at <= "+arg(q.To.UTC()))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var page Page
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+clause, args...).Scan(&page.Total); err != nil {
		return Page{}, Persistence("count transactions", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + clause + ` ORDER BY seq DESC`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		query += " OFFSET " + arg(q.Offset)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, Persistence("list transactions", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return Page{}, Persistence("list transactions", err)
		}
		page.Transactions = append(page.Transactions, t)
	}
	return page, Persistence("list transactions", rows.Err())
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetAccountForUpdate(ctx context.Context, id string) (Account, error) {
	if !validID(id) {
		return Account{}, ErrNotFound
	}
	a, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM savings_accounts WHERE id = $1 FOR UPDATE`, id))
	return a, Persistence("lock account", err)
}

func (t *postgresTx) GetLoanForUpdate(ctx context.Context, id string) (Loan, error) {
	if !validID(id) {
		return Loan{}, ErrNotFound
	}
	l, err := scanLoan(t.tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id))
	return l, Persistence("lock loan", err)
}

func (t *postgresTx) InsertAccount(ctx context.Context, a Account) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO savings_accounts
        (id, owner_id, account_number, balance, account_type, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OwnerID, a.AccountNumber, a.Balance.String(), a.AccountType, string(a.Status), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return Persistence("insert account", mapConstraint(err))
}

func (t *postgresTx) UpdateAccount(ctx context.Context, a Account) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE savings_accounts SET balance = $2, status = $3, updated_at = $4 WHERE id = $1`,
		a.ID, a.Balance.String(), string(a.Status), a.UpdatedAt.UTC())
	if err != nil {
		return Persistence("update account", mapConstraint(err))
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) InsertLoan(ctx context.Context, l Loan) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO loans
        (id, borrower_id, loan_number, principal_amount, interest_rate, term_months, total_amount,
         remaining_balance, monthly_payment, purpose, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.BorrowerID, l.LoanNumber, l.Principal.String(), l.InterestRate.StringFixed(2), l.TermMonths,
		l.TotalAmount.String(), l.RemainingBalance.String(), l.MonthlyPayment.String(), l.Purpose, string(l.Status),
		l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	return Persistence("insert loan", mapConstraint(err))
}

func (t *postgresTx) UpdateLoan(ctx context.Context, l Loan) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE loans SET remaining_balance = $2, status = $3, approved_by = $4,
        approved_at = $5, disbursed_at = $6, due_date = $7, updated_at = $8 WHERE id = $1`,
		l.ID, l.RemainingBalance.String(), string(l.Status), l.ApprovedBy, utcPtr(l.ApprovedAt), utcPtr(l.DisbursedAt),
		utcPtr(l.DueDate), l.UpdatedAt.UTC())
	if err != nil {
		return Persistence("update loan", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, tr Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions
        (id, account_id, loan_id, transaction_type, amount, balance_before, balance_after, description, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tr.ID, tr.AccountID, tr.LoanID, string(tr.Type), tr.Amount.String(), tr.BalanceBefore.String(),
		tr.BalanceAfter.String(), tr.Description, tr.Status, tr.CreatedAt.UTC())
	return Persistence("insert transaction", err)
}

func (t *postgresTx) AppendAudit(ctx context.Context, e AuditEntry) error {
	var performedBy *string
	if validID(e.PerformedBy) {
		performedBy = &e.PerformedBy
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO audit_logs
        (id, performed_by, action, entity_type, entity_id, old_values, new_values, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, performedBy, e.Action, e.EntityType, e.EntityID, e.OldValues, e.NewValues, e.CreatedAt.UTC())
	return Persistence("append audit", err)
}

func (t *postgresTx) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM savings_accounts WHERE account_number = $1)`, number).Scan(&exists)
	return exists, Persistence("check account number", err)
}

func (t *postgresTx) LoanNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE loan_number = $1)`, number).Scan(&exists)
	return exists, Persistence("check loan number", err)
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a       Account
		balance string
		status  string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &balance, &status, &a.AccountType, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	var err error
	if a.Balance, err = money.Parse(balance); err != nil {
		return Account{}, err
	}
	a.Status = AccountStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	var principal, rate, total, remaining, payment, status string
	if err := row.Scan(&l.ID, &l.BorrowerID, &l.LoanNumber, &principal, &rate, &l.TermMonths, &total, &remaining,
		&payment, &l.Purpose, &status, &l.ApprovedBy, &l.ApprovedAt, &l.DisbursedAt, &l.DueDate, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrNotFound
		}
		return Loan{}, err
	}
	var err error
	for _, f := range []struct {
		dst *money.Amount
		src string
	}{{&l.Principal, principal}, {&l.TotalAmount, total}, {&l.RemainingBalance, remaining}, {&l.MonthlyPayment, payment}} {
		if *f.dst, err = money.Parse(f.src); err != nil {
			return Loan{}, err
		}
	}
	if l.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return Loan{}, err
	}
	l.Status = LoanStatus(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var txType, amount, before, after string
	if err := row.Scan(&t.ID, &t.AccountID, &t.LoanID, &txType, &amount, &before, &after, &t.Description, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	var err error
	if t.Amount, err = money.Parse(amount); err != nil {
		return Transaction{}, err
	}
	if t.BalanceBefore, err = money.Parse(before); err != nil {
		return Transaction{}, err
	}
	if t.BalanceAfter, err = money.Parse(after); err != nil {
		return Transaction{}, err
	}
	t.Type = TransactionType(txType)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintAccountNumber, constraintLoanNumber:
		return ErrDuplicateNumber
	case constraintOpenAccount:
		return ErrAccountExists
	}
	return err
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
