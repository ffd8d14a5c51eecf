//go:build integration

package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/susubank/susubank/internal/infra"
	"github.com/susubank/susubank/internal/ledger"
	"github.com/susubank/susubank/internal/logging"
	"github.com/susubank/susubank/internal/money"
)

func setupPostgresStore(t *testing.T) (*ledger.PostgresStore, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("susubank"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, infra.Migrate(dsn, logging.Discard()))

	pool, err := infra.NewPostgresPool(ctx, infra.PostgresOptions{URL: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return ledger.NewPostgresStore(pool), pool
}

func newAccount(owner, number string) ledger.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return ledger.Account{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		AccountNumber: number,
		Balance:       money.Zero,
		Status:        ledger.AccountActive,
		AccountType:   ledger.DefaultAccountType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestIntegration_PostgresStore(t *testing.T) {
	store, _ := setupPostgresStore(t)
	ctx := context.Background()
	owner := uuid.NewString()
	acct := newAccount(owner, "SAV000000000001")

	t.Run("insert and read back", func(t *testing.T) {
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return tx.InsertAccount(ctx, acct)
		}))
		got, err := store.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, acct.AccountNumber, got.AccountNumber)
		assert.Equal(t, "0.00", got.Balance.String())

		_, err = store.GetAccount(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("unique constraints map to ledger errors", func(t *testing.T) {
		dup := newAccount(uuid.NewString(), acct.AccountNumber)
		err := store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error { return tx.InsertAccount(ctx, dup) })
		assert.ErrorIs(t, err, ledger.ErrDuplicateNumber)

		second := newAccount(owner, "SAV000000000002")
		err = store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error { return tx.InsertAccount(ctx, second) })
		assert.ErrorIs(t, err, ledger.ErrAccountExists)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			locked, err := tx.GetAccountForUpdate(ctx, acct.ID)
			if err != nil {
				return err
			}
			locked.Balance = money.MustParse("99.99")
			if err := tx.UpdateAccount(ctx, locked); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		got, err := store.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.IsZero())
	})

	t.Run("negative balances are refused by the schema", func(t *testing.T) {
		err := store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			locked, err := tx.GetAccountForUpdate(ctx, acct.ID)
			if err != nil {
				return err
			}
			locked.Balance = money.MustParse("-1")
			return tx.UpdateAccount(ctx, locked)
		})
		assert.ErrorIs(t, err, ledger.ErrPersistence)
	})

	t.Run("row locks serialise increments", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
					locked, err := tx.GetAccountForUpdate(ctx, acct.ID)
					if err != nil {
						return err
					}
					locked.Balance = locked.Balance.Add(money.MustParse("0.40"))
					return tx.UpdateAccount(ctx, locked)
				}))
			}()
		}
		wg.Wait()
		got, err := store.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "10.00", got.Balance.String())
	})

	t.Run("transactions list newest first with filters", func(t *testing.T) {
		loanID := uuid.NewString()
		now := time.Now().UTC()
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if err := tx.InsertLoan(ctx, ledger.Loan{
				ID: loanID, BorrowerID: owner, LoanNumber: "LOAN000000000001",
				Principal: money.MustParse("100"), InterestRate: decimal.NewFromInt(12), TermMonths: 12,
				TotalAmount: money.MustParse("106.62"), RemainingBalance: money.MustParse("106.62"),
				MonthlyPayment: money.MustParse("8.89"), Status: ledger.LoanPending, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
			for i, typ := range []ledger.TransactionType{ledger.TypeDeposit, ledger.TypeWithdrawal, ledger.TypeLoanRepayment} {
				accountID := acct.ID
				tr := ledger.Transaction{
					ID: uuid.NewString(), AccountID: &accountID, Type: typ,
					Amount: money.FromMinor(int64(100 * (i + 1))), BalanceBefore: money.Zero, BalanceAfter: money.Zero,
					Status: ledger.TransactionCompleted, CreatedAt: now,
				}
				if typ == ledger.TypeLoanRepayment {
					tr.LoanID = &loanID
				}
				if err := tx.InsertTransaction(ctx, tr); err != nil {
					return err
				}
			}
			return nil
		}))

		page, err := store.ListTransactions(ctx, ledger.TransactionQuery{AccountIDs: []string{acct.ID}, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Transactions, 2)
		assert.Equal(t, ledger.TypeLoanRepayment, page.Transactions[0].Type)
		assert.Equal(t, ledger.TypeWithdrawal, page.Transactions[1].Type)

		both, err := store.ListTransactions(ctx, ledger.TransactionQuery{AccountIDs: []string{acct.ID}, LoanIDs: []string{loanID}, MatchBoth: true})
		require.NoError(t, err)
		assert.Equal(t, 1, both.Total)

		loan, err := store.GetLoan(ctx, loanID)
		require.NoError(t, err)
		assert.True(t, loan.InterestRate.Equal(decimal.NewFromInt(12)))
		assert.Equal(t, "106.62", loan.TotalAmount.String())
	})

	t.Run("audit entries commit with the unit", func(t *testing.T) {
		err := store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return tx.AppendAudit(ctx, ledger.NewAuditEntry(owner, "account.status_changed", "account", acct.ID,
				map[string]any{"status": "active"}, map[string]any{"status": "frozen"}, time.Now()))
		})
		assert.NoError(t, err)
	})
}
