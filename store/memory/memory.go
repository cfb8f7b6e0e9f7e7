// Package memory provides an in-memory Store (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lendward/loan-engine/engine"
	"github.com/lendward/loan-engine/loan"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of loan.Store
// =============================================================================

type Store struct {
	mu           sync.RWMutex
	loans        map[string]loan.Loan
	transactions map[string][]engine.Transaction
	schedules    map[string][]engine.ScheduleRow
}

func New() *Store {
	return &Store{
		loans:        make(map[string]loan.Loan),
		transactions: make(map[string][]engine.Transaction),
		schedules:    make(map[string][]engine.ScheduleRow),
	}
}

func (m *Store) CreateLoan(_ context.Context, l *loan.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[l.ID] = *l
	return nil
}

func (m *Store) GetLoan(_ context.Context, id string) (*loan.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	cp := l
	return &cp, nil
}

func (m *Store) ListLoans(_ context.Context) ([]*loan.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*loan.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		cp := l
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) UpdateLoan(_ context.Context, l *loan.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[l.ID]; !ok {
		return loan.ErrNotFound
	}
	m.loans[l.ID] = *l
	return nil
}

func (m *Store) AppendTransaction(_ context.Context, loanID string, tx engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[loanID]; !ok {
		return loan.ErrNotFound
	}

	txs := m.transactions[loanID]

	// Binary search for insertion point keeps the slice date-ordered.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].Date.After(tx.Date)
	})
	txs = append(txs, engine.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[loanID] = txs
	return nil
}

func (m *Store) Transactions(_ context.Context, loanID string) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Transaction
	for _, tx := range m.transactions[loanID] {
		if !tx.Deleted {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Store) DeleteTransaction(_ context.Context, loanID, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := m.transactions[loanID]
	for i := range txs {
		if txs[i].ID == txID && !txs[i].Deleted {
			txs[i].Deleted = true
			return nil
		}
	}
	return loan.ErrTransactionNotFound
}

func (m *Store) ReplaceSchedule(_ context.Context, loanID string, rows []engine.ScheduleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[loanID]; !ok {
		return loan.ErrNotFound
	}
	cp := make([]engine.ScheduleRow, len(rows))
	copy(cp, rows)
	m.schedules[loanID] = cp
	return nil
}

func (m *Store) Schedule(_ context.Context, loanID string) ([]engine.ScheduleRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.schedules[loanID]
	result := make([]engine.ScheduleRow, len(rows))
	copy(result, rows)
	return result, nil
}
