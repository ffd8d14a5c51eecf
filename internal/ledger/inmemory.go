package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// entityLocks hands out one exclusive, context-aware lock per key so that
// units of work on disjoint rows never wait on each other. A slot lives only
// while someone holds or waits for it.
type entityLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	held chan struct{}
	refs int
}

func (l *entityLocks) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{held: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.held <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, slot)
		return ctx.Err()
	}
}

func (l *entityLocks) release(key string) {
	l.mu.Lock()
	slot := l.slots[key]
	l.mu.Unlock()
	<-slot.held
	l.unref(key, slot)
}

func (l *entityLocks) unref(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *entityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type inMemoryStore struct {
	mu             sync.RWMutex
	accounts       map[string]Account
	loans          map[string]Loan
	transactions   []Transaction
	txIndex        map[string]int
	audit          []AuditEntry
	accountNumbers map[string]struct{}
	loanNumbers    map[string]struct{}
	openAccounts   map[string]string

	locks entityLocks
}

// NewInMemory creates a concurrency-safe in-memory store. Rows are locked
// individually and writes are staged until commit, so it honours the same
// isolation guarantees as the PostgreSQL store.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:       make(map[string]Account),
		loans:          make(map[string]Loan),
		txIndex:        make(map[string]int),
		accountNumbers: make(map[string]struct{}),
		loanNumbers:    make(map[string]struct{}),
		openAccounts:   make(map[string]string),
		locks:          entityLocks{slots: make(map[string]*lockSlot)},
	}
}

func openKey(ownerID, accountType string) string { return ownerID + "|" + accountType }

func (s *inMemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &inMemoryTx{
		store:    s,
		held:     make(map[string]bool),
		accounts: make(map[string]Account),
		loans:    make(map[string]Loan),
	}
	defer func() {
		if !tx.done {
			tx.rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return Persistence("commit", err)
	}
	tx.commit()
	return nil
}

func (s *inMemoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *inMemoryStore) ListAccountsByOwner(_ context.Context, ownerID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Account
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *inMemoryStore) GetLoan(_ context.Context, id string) (Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	if !ok {
		return Loan{}, ErrNotFound
	}
	return l, nil
}

func (s *inMemoryStore) ListLoansByBorrower(_ context.Context, borrowerID string, status LoanStatus) ([]Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Loan
	for _, l := range s.loans {
		if l.BorrowerID != borrowerID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *inMemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.txIndex[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return s.transactions[idx], nil
}

// ListTransactions returns matches newest first.
func (s *inMemoryStore) ListTransactions(_ context.Context, q TransactionQuery) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := toSet(q.AccountIDs)
	loans := toSet(q.LoanIDs)
	scoped := len(accounts) > 0 || len(loans) > 0

	var matched []Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if scoped {
			_, byAccount := accounts[deref(t.AccountID)]
			_, byLoan := loans[deref(t.LoanID)]
			byAccount = byAccount && t.AccountID != nil
			byLoan = byLoan && t.LoanID != nil
			if q.MatchBoth && !(byAccount && byLoan) {
				continue
			}
			if !byAccount && !byLoan {
				continue
			}
		}
		if q.Type != "" && t.Type != q.Type {
			continue
		}
		if q.From != nil && t.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && t.CreatedAt.After(*q.To) {
			continue
		}
		matched = append(matched, t)
	}

	page := Page{Total: len(matched)}
	start := min(q.Offset, len(matched))
	end := len(matched)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(matched))
	}
	page.Transactions = append([]Transaction(nil), matched[start:end]...)
	return page, nil
}

type inMemoryTx struct {
	store *inMemoryStore
	done  bool

	held         map[string]bool
	accounts     map[string]Account
	loans        map[string]Loan
	transactions []Transaction
	audit        []AuditEntry

	reservedAccountNumbers []string
	reservedLoanNumbers    []string
	reservedOpen           []string
}

func (tx *inMemoryTx) lock(ctx context.Context, key string) error {
	if tx.held[key] {
		return nil
	}
	if err := tx.store.locks.acquire(ctx, key); err != nil {
		return Persistence("lock "+key, err)
	}
	tx.held[key] = true
	return nil
}

func (tx *inMemoryTx) GetAccountForUpdate(ctx context.Context, id string) (Account, error) {
	if err := tx.lock(ctx, "account:"+id); err != nil {
		return Account{}, err
	}
	if a, ok := tx.accounts[id]; ok {
		return a, nil
	}
	return tx.store.GetAccount(ctx, id)
}

func (tx *inMemoryTx) GetLoanForUpdate(ctx context.Context, id string) (Loan, error) {
	if err := tx.lock(ctx, "loan:"+id); err != nil {
		return Loan{}, err
	}
	if l, ok := tx.loans[id]; ok {
		return l, nil
	}
	return tx.store.GetLoan(ctx, id)
}

func (tx *inMemoryTx) InsertAccount(ctx context.Context, a Account) error {
	s := tx.store
	s.mu.Lock()
	if _, taken := s.accountNumbers[a.AccountNumber]; taken {
		s.mu.Unlock()
		return ErrDuplicateNumber
	}
	if _, exists := s.accounts[a.ID]; exists {
		s.mu.Unlock()
		return Persistence("insert account", fmt.Errorf("account %s already exists", a.ID))
	}
	key := openKey(a.OwnerID, a.AccountType)
	if a.Status != AccountClosed {
		if _, taken := s.openAccounts[key]; taken {
			s.mu.Unlock()
			return ErrAccountExists
		}
		s.openAccounts[key] = a.ID
		tx.reservedOpen = append(tx.reservedOpen, key)
	}
	s.accountNumbers[a.AccountNumber] = struct{}{}
	tx.reservedAccountNumbers = append(tx.reservedAccountNumbers, a.AccountNumber)
	s.mu.Unlock()

	if err := tx.lock(ctx, "account:"+a.ID); err != nil {
		return err
	}
	tx.accounts[a.ID] = a
	return nil
}

func (tx *inMemoryTx) UpdateAccount(_ context.Context, a Account) error {
	if !tx.held["account:"+a.ID] {
		return Persistence("update account", fmt.Errorf("account %s is not locked", a.ID))
	}
	if a.Balance.IsNegative() {
		return Persistence("update account", errors.New("balance must not be negative"))
	}
	tx.accounts[a.ID] = a
	return nil
}

func (tx *inMemoryTx) InsertLoan(ctx context.Context, l Loan) error {
	s := tx.store
	s.mu.Lock()
	if _, taken := s.loanNumbers[l.LoanNumber]; taken {
		s.mu.Unlock()
		return ErrDuplicateNumber
	}
	s.loanNumbers[l.LoanNumber] = struct{}{}
	tx.reservedLoanNumbers = append(tx.reservedLoanNumbers, l.LoanNumber)
	s.mu.Unlock()

	if err := tx.lock(ctx, "loan:"+l.ID); err != nil {
		return err
	}
	tx.loans[l.ID] = l
	return nil
}

func (tx *inMemoryTx) UpdateLoan(_ context.Context, l Loan) error {
	if !tx.held["loan:"+l.ID] {
		return Persistence("update loan", fmt.Errorf("loan %s is not locked", l.ID))
	}
	if l.RemainingBalance.IsNegative() {
		return Persistence("update loan", errors.New("remaining balance must not be negative"))
	}
	tx.loans[l.ID] = l
	return nil
}

func (tx *inMemoryTx) InsertTransaction(_ context.Context, t Transaction) error {
	if t.AccountID == nil && t.LoanID == nil {
		return Persistence("insert transaction", errors.New("transaction must reference an account or a loan"))
	}
	if !t.Amount.IsPositive() {
		return Persistence("insert transaction", errors.New("transaction amount must be positive"))
	}
	tx.transactions = append(tx.transactions, t)
	return nil
}

func (tx *inMemoryTx) AppendAudit(_ context.Context, e AuditEntry) error {
	tx.audit = append(tx.audit, e)
	return nil
}

func (tx *inMemoryTx) AccountNumberExists(_ context.Context, number string) (bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.accountNumbers[number]
	return ok, nil
}

func (tx *inMemoryTx) LoanNumberExists(_ context.Context, number string) (bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.loanNumbers[number]
	return ok, nil
}

func (tx *inMemoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	for id, a := range tx.accounts {
		if a.Status == AccountClosed {
			key := openKey(a.OwnerID, a.AccountType)
			if s.openAccounts[key] == id {
				delete(s.openAccounts, key)
			}
		}
		s.accounts[id] = a
	}
	for id, l := range tx.loans {
		s.loans[id] = l
	}
	for _, t := range tx.transactions {
		s.txIndex[t.ID] = len(s.transactions)
		s.transactions = append(s.transactions, t)
	}
	s.audit = append(s.audit, tx.audit...)
	s.mu.Unlock()

	tx.finish()
}

func (tx *inMemoryTx) rollback() {
	s := tx.store
	s.mu.Lock()
	for _, n := range tx.reservedAccountNumbers {
		delete(s.accountNumbers, n)
	}
	for _, n := range tx.reservedLoanNumbers {
		delete(s.loanNumbers, n)
	}
	for _, k := range tx.reservedOpen {
		delete(s.openAccounts, k)
	}
	s.mu.Unlock()

	tx.finish()
}

func (tx *inMemoryTx) finish() {
	if tx.done {
		return
	}
	tx.done = true
	for key := range tx.held {
		tx.store.locks.release(key)
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
