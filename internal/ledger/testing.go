package ledger

// SeedAccount is a test helper that writes an account directly into the in-memory store.
func SeedAccount(s Store, a Account) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.accounts[a.ID] = a
		mem.accountNumbers[a.AccountNumber] = struct{}{}
		if a.Status != AccountClosed {
			mem.openAccounts[openKey(a.OwnerID, a.AccountType)] = a.ID
		}
	}
}

// SeedLoan is a test helper that writes a loan directly into the in-memory store.
func SeedLoan(s Store, l Loan) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.loans[l.ID] = l
		mem.loanNumbers[l.LoanNumber] = struct{}{}
	}
}

// AuditTrail is a test helper returning the audit entries committed to the in-memory store.
func AuditTrail(s Store) []AuditEntry {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return append([]AuditEntry(nil), mem.audit...)
	}
	return nil
}
