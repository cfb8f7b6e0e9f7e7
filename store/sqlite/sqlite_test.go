package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendward/loan-engine/engine"
	"github.com/lendward/loan-engine/loan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testLoan(id string) *loan.Loan {
	rate := decimal.NewFromInt(14)
	now := time.Now().UTC().Truncate(time.Second)
	return &loan.Loan{
		ID:       id,
		Borrower: "Acme Developments Ltd",
		Terms: engine.LoanTerms{
			Principal:    decimal.NewFromInt(10000),
			AnnualRate:   decimal.NewFromInt(12),
			InterestType: engine.InterestSimple,
			Duration:     12,
			PeriodUnit:   engine.PeriodMonthly,
			StartDate:    engine.NewDate(2025, time.January, 15),
			PenaltyRate:  &rate,
		},
		Config: engine.ProductConfig{
			Method:       engine.MethodDaily,
			Alignment:    engine.AlignLoanStart,
			Amortization: engine.AmortizeInterestOnly,
		},
		Status:            loan.StatusLive,
		OverpaymentCredit: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestStore_CreateAndGetLoan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := testLoan("l1")
	require.NoError(t, store.CreateLoan(ctx, created))

	got, err := store.GetLoan(ctx, "l1")
	require.NoError(t, err)

	assert.Equal(t, created.Borrower, got.Borrower)
	assert.True(t, got.Terms.Principal.Equal(created.Terms.Principal))
	assert.True(t, got.Terms.StartDate.Equal(created.Terms.StartDate))
	require.NotNil(t, got.Terms.PenaltyRate)
	assert.True(t, got.Terms.PenaltyRate.Equal(decimal.NewFromInt(14)))
	assert.Equal(t, engine.MethodDaily, got.Config.Method)
	assert.Equal(t, loan.StatusLive, got.Status)
}

func TestStore_GetLoanNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetLoan(context.Background(), "missing")
	assert.ErrorIs(t, err, loan.ErrNotFound)
}

func TestStore_ListLoansOrderedByCreation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testLoan("l1")
	second := testLoan("l2")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	require.NoError(t, store.CreateLoan(ctx, first))
	require.NoError(t, store.CreateLoan(ctx, second))

	loans, err := store.ListLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "l1", loans[0].ID)
	assert.Equal(t, "l2", loans[1].ID)
}

func TestStore_UpdateLoan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testLoan("l1")
	require.NoError(t, store.CreateLoan(ctx, l))

	l.Status = loan.StatusSettled
	l.OverpaymentCredit = decimal.NewFromFloat(12.50)
	require.NoError(t, store.UpdateLoan(ctx, l))

	got, err := store.GetLoan(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusSettled, got.Status)
	assert.True(t, got.OverpaymentCredit.Equal(decimal.NewFromFloat(12.50)))
}

func TestStore_UpdateLoanNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateLoan(context.Background(), testLoan("ghost"))
	assert.ErrorIs(t, err, loan.ErrNotFound)
}

func TestStore_TransactionsOrderedByDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateLoan(ctx, testLoan("l1")))

	// Appended out of order; the store returns them date-ascending.
	later := engine.Transaction{
		ID: "t2", Date: engine.NewDate(2025, time.March, 1),
		Type: engine.TxRepayment, Amount: decimal.NewFromInt(100),
	}
	earlier := engine.Transaction{
		ID: "t1", Date: engine.NewDate(2025, time.February, 1),
		Type: engine.TxRepayment, Amount: decimal.NewFromInt(100),
	}
	require.NoError(t, store.AppendTransaction(ctx, "l1", later))
	require.NoError(t, store.AppendTransaction(ctx, "l1", earlier))

	txs, err := store.Transactions(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t1", txs[0].ID)
	assert.Equal(t, "t2", txs[1].ID)
}

func TestStore_TransactionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateLoan(ctx, testLoan("l1")))

	tx := engine.Transaction{
		ID:               "t1",
		Date:             engine.NewDate(2025, time.February, 15),
		Type:             engine.TxRepayment,
		Amount:           decimal.NewFromFloat(4130.00),
		PrincipalApplied: decimal.NewFromInt(4000),
		InterestApplied:  decimal.NewFromInt(100),
		FeesApplied:      decimal.NewFromInt(30),
		Settlement:       true,
	}
	require.NoError(t, store.AppendTransaction(ctx, "l1", tx))

	txs, err := store.Transactions(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	got := txs[0]
	assert.True(t, got.Date.Equal(tx.Date))
	assert.True(t, got.Amount.Equal(tx.Amount))
	assert.True(t, got.PrincipalApplied.Equal(tx.PrincipalApplied))
	assert.True(t, got.InterestApplied.Equal(tx.InterestApplied))
	assert.True(t, got.FeesApplied.Equal(tx.FeesApplied))
	assert.True(t, got.Settlement)
}

func TestStore_SoftDeleteHidesTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateLoan(ctx, testLoan("l1")))

	tx := engine.Transaction{
		ID: "t1", Date: engine.NewDate(2025, time.February, 1),
		Type: engine.TxRepayment, Amount: decimal.NewFromInt(100),
	}
	require.NoError(t, store.AppendTransaction(ctx, "l1", tx))
	require.NoError(t, store.DeleteTransaction(ctx, "l1", "t1"))

	txs, err := store.Transactions(ctx, "l1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	// Deleting twice fails: the row is already hidden.
	err = store.DeleteTransaction(ctx, "l1", "t1")
	assert.ErrorIs(t, err, loan.ErrTransactionNotFound)
}

func TestStore_DeleteUnknownTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateLoan(ctx, testLoan("l1")))

	err := store.DeleteTransaction(ctx, "l1", "ghost")
	assert.ErrorIs(t, err, loan.ErrTransactionNotFound)
}

func TestStore_ReplaceScheduleSwapsRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateLoan(ctx, testLoan("l1")))

	terms := testLoan("l1").Terms
	rows, err := engine.GenerateSchedule(terms, engine.ProductConfig{
		Method:       engine.MethodMonthlyFixed,
		Amortization: engine.AmortizeInterestOnly,
	}, engine.ScheduleOptions{})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceSchedule(ctx, "l1", rows))

	// Replace with a shortened set: no stale rows may survive.
	require.NoError(t, store.ReplaceSchedule(ctx, "l1", rows[:3]))

	got, err := store.Schedule(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, rows[i].Installment, r.Installment)
		assert.True(t, r.InterestDue.Equal(rows[i].InterestDue), "row %d interest", i)
		assert.True(t, r.DueDate.Equal(rows[i].DueDate), "row %d due date", i)
		assert.Equal(t, rows[i].Status, r.Status)
	}
}

func TestStore_ScheduleEmptyForUnknownLoan(t *testing.T) {
	store := newTestStore(t)

	rows, err := store.Schedule(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
