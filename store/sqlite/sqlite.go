/*
Package sqlite provides a SQLite-backed implementation of loan.Store.

PURPOSE:
  Persists loans, their transaction histories and their current schedules.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  loans:         Loan records; terms and product config stored as JSON
  transactions:  Capital movements, soft-deleted only, never removed
  schedule_rows: The current schedule, replaced wholesale on regeneration

SOFT DELETE:
  Transactions carry a deleted flag instead of being removed; the
  non-deleted, date-ordered subset is the engine's authoritative input
  and the deleted rows remain for audit.

ATOMIC REPLACEMENT:
  ReplaceSchedule swaps a loan's rows inside a single database
  transaction, so a reader never observes a half-replaced schedule.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery improves.

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - loan/store.go: Interface definition
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/lendward/loan-engine/engine"
	"github.com/lendward/loan-engine/loan"
)

// Store implements loan.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		borrower TEXT NOT NULL,
		terms_json TEXT NOT NULL,
		config_json TEXT NOT NULL,
		status TEXT NOT NULL,
		overpayment_credit TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Capital movements. Soft-deleted only: the deleted flag excludes a row
	-- from calculations while keeping it for audit.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		date TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		principal_applied TEXT NOT NULL,
		interest_applied TEXT NOT NULL,
		fees_applied TEXT NOT NULL,
		settlement BOOLEAN NOT NULL DEFAULT FALSE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_loan_date
		ON transactions(loan_id, date);

	-- The current schedule. Replaced wholesale on regeneration.
	CREATE TABLE IF NOT EXISTS schedule_rows (
		loan_id TEXT NOT NULL REFERENCES loans(id),
		installment INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		principal_due TEXT NOT NULL,
		interest_due TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (loan_id, installment)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, l *loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	termsJSON, err := json.Marshal(l.Terms)
	if err != nil {
		return fmt.Errorf("marshal terms: %w", err)
	}
	configJSON, err := json.Marshal(l.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO loans (id, borrower, terms_json, config_json, status, overpayment_credit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		l.ID, l.Borrower, string(termsJSON), string(configJSON),
		string(l.Status), l.OverpaymentCredit.String(),
		l.CreatedAt.UTC().Format(time.RFC3339),
		l.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetLoan(ctx context.Context, id string) (*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, borrower, terms_json, config_json, status, overpayment_credit, created_at, updated_at FROM loans WHERE id = ?",
		id,
	)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, loan.ErrNotFound
	}
	return l, err
}

func (s *Store) ListLoans(ctx context.Context) ([]*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, borrower, terms_json, config_json, status, overpayment_credit, created_at, updated_at FROM loans ORDER BY created_at ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func (s *Store) UpdateLoan(ctx context.Context, l *loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	termsJSON, err := json.Marshal(l.Terms)
	if err != nil {
		return fmt.Errorf("marshal terms: %w", err)
	}
	configJSON, err := json.Marshal(l.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		UPDATE loans SET borrower = ?, terms_json = ?, config_json = ?, status = ?,
			overpayment_credit = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		l.Borrower, string(termsJSON), string(configJSON), string(l.Status),
		l.OverpaymentCredit.String(), l.UpdatedAt.UTC().Format(time.RFC3339),
		l.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return loan.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*loan.Loan, error) {
	var (
		l          loan.Loan
		termsJSON  string
		configJSON string
		status     string
		credit     string
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&l.ID, &l.Borrower, &termsJSON, &configJSON, &status, &credit, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(termsJSON), &l.Terms); err != nil {
		return nil, fmt.Errorf("unmarshal terms: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &l.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	var err error
	l.Status = loan.Status(status)
	if l.OverpaymentCredit, err = decimal.NewFromString(credit); err != nil {
		return nil, fmt.Errorf("parse credit: %w", err)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &l, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, loanID string, tx engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO transactions
		(id, loan_id, date, tx_type, amount, principal_applied, interest_applied, fees_applied, settlement, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		tx.ID, loanID, tx.Date.String(), string(tx.Type),
		tx.Amount.String(), tx.PrincipalApplied.String(),
		tx.InterestApplied.String(), tx.FeesApplied.String(),
		tx.Settlement, tx.Deleted,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return loan.ErrNotFound
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) Transactions(ctx context.Context, loanID string) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, date, tx_type, amount, principal_applied, interest_applied, fees_applied, settlement, deleted
		FROM transactions
		WHERE loan_id = ? AND deleted = FALSE
		ORDER BY date ASC, created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []engine.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) DeleteTransaction(ctx context.Context, loanID, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET deleted = TRUE WHERE id = ? AND loan_id = ? AND deleted = FALSE",
		txID, loanID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return loan.ErrTransactionNotFound
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (engine.Transaction, error) {
	var (
		tx        engine.Transaction
		date      string
		txType    string
		amount    string
		principal string
		interest  string
		fees      string
	)
	err := rows.Scan(&tx.ID, &date, &txType, &amount, &principal, &interest, &fees, &tx.Settlement, &tx.Deleted)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Date, err = engine.ParseDate(date); err != nil {
		return tx, fmt.Errorf("parse transaction date: %w", err)
	}
	tx.Type = engine.TxType(txType)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, err
	}
	if tx.PrincipalApplied, err = decimal.NewFromString(principal); err != nil {
		return tx, err
	}
	if tx.InterestApplied, err = decimal.NewFromString(interest); err != nil {
		return tx, err
	}
	if tx.FeesApplied, err = decimal.NewFromString(fees); err != nil {
		return tx, err
	}
	return tx, nil
}

// =============================================================================
// SCHEDULE
// =============================================================================

// ReplaceSchedule swaps the loan's rows inside one database transaction.
func (s *Store) ReplaceSchedule(ctx context.Context, loanID string, rows []engine.ScheduleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM schedule_rows WHERE loan_id = ?", loanID); err != nil {
		return err
	}

	query := `
		INSERT INTO schedule_rows
		(loan_id, installment, due_date, period_start, period_end, principal_due, interest_due, principal_paid, interest_paid, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range rows {
		if _, err := sqlTx.ExecContext(ctx, query,
			loanID, r.Installment,
			r.DueDate.String(), r.PeriodStart.String(), r.PeriodEnd.String(),
			r.PrincipalDue.String(), r.InterestDue.String(),
			r.PrincipalPaid.String(), r.InterestPaid.String(),
			string(r.Status),
		); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func (s *Store) Schedule(ctx context.Context, loanID string) ([]engine.ScheduleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT installment, due_date, period_start, period_end, principal_due, interest_due, principal_paid, interest_paid, status
		FROM schedule_rows
		WHERE loan_id = ?
		ORDER BY installment ASC
	`
	dbRows, err := s.db.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	var rows []engine.ScheduleRow
	for dbRows.Next() {
		r, err := scanScheduleRow(dbRows)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, dbRows.Err()
}

func scanScheduleRow(rows *sql.Rows) (engine.ScheduleRow, error) {
	var (
		r             engine.ScheduleRow
		dueDate       string
		periodStart   string
		periodEnd     string
		principalDue  string
		interestDue   string
		principalPaid string
		interestPaid  string
		status        string
	)
	err := rows.Scan(&r.Installment, &dueDate, &periodStart, &periodEnd,
		&principalDue, &interestDue, &principalPaid, &interestPaid, &status)
	if err != nil {
		return r, fmt.Errorf("failed to scan schedule row: %w", err)
	}

	if r.DueDate, err = engine.ParseDate(dueDate); err != nil {
		return r, err
	}
	if r.PeriodStart, err = engine.ParseDate(periodStart); err != nil {
		return r, err
	}
	if r.PeriodEnd, err = engine.ParseDate(periodEnd); err != nil {
		return r, err
	}
	if r.PrincipalDue, err = decimal.NewFromString(principalDue); err != nil {
		return r, err
	}
	if r.InterestDue, err = decimal.NewFromString(interestDue); err != nil {
		return r, err
	}
	if r.PrincipalPaid, err = decimal.NewFromString(principalPaid); err != nil {
		return r, err
	}
	if r.InterestPaid, err = decimal.NewFromString(interestPaid); err != nil {
		return r, err
	}
	r.Status = engine.RowStatus(status)
	return r, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"schedule_rows", "transactions", "loans"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
