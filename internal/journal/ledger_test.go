package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtimport/internal/accounts"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// newTestLedger returns a ledger over a copy of testdata/journal.csv as
// the January 2025 journal.
func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	src, err := os.ReadFile("../../testdata/journal.csv")
	require.NoError(t, err)
	monthDir := filepath.Join(dir, "2025", "01")
	require.NoError(t, os.MkdirAll(monthDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(monthDir, "journal.csv"), src, 0o644))
	return NewLedger(dir, accounts.NewService(accounts.DefaultChart("business"))), dir
}

func TestLedger_Transactions(t *testing.T) {
	l, _ := newTestLedger(t)

	txns, err := l.Transactions(context.Background(), "1010", model.DateRange{})
	require.NoError(t, err)
	require.Len(t, txns, 3, "voided entry is not a ledger transaction")

	assert.Equal(t, "2025-01-001", txns[0].ID)
	assert.Equal(t, "1010", txns[0].Account)
	assert.Equal(t, "-4.00", txns[0].Amount.StringFixed(2))
	assert.Equal(t, "202501030001", txns[0].ExternalID)
	assert.Equal(t, "1042", txns[1].CheckNumber)
	assert.Equal(t, "3500.00", txns[2].Amount.StringFixed(2))

	expense, err := l.Transactions(context.Background(), "5010", model.DateRange{})
	require.NoError(t, err)
	require.Len(t, expense, 1)
	assert.Equal(t, "4.00", expense[0].Amount.StringFixed(2))

	window, err := l.Transactions(context.Background(), "1010", model.DateRange{Start: date(2025, 1, 5), End: date(2025, 1, 10)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "2025-01-002", window[0].ID)
}

func TestLedger_BadAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Transactions(context.Background(), "Checking", model.DateRange{})
	assert.ErrorContains(t, err, "chart account ID")
}

func TestLedger_Cancelled(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Transactions(ctx, "1010", model.DateRange{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, l.Record(ctx, "1010", model.ImportTransaction{}), context.Canceled)
}

func TestLedger_RecordCategory(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	err := l.Record(ctx, "1010", model.ImportTransaction{
		ID:          "imp-1",
		Amount:      dec("-42.10"),
		DatePosted:  date(2025, 1, 20),
		Payee:       "Paper Co",
		Memo:        "toner",
		Category:    "office supplies",
		CheckNumber: "1043",
		ExternalID:  "FIT-9",
	})
	require.NoError(t, err)

	legs, err := l.svc.ReadMonth(2025, 1)
	require.NoError(t, err)
	require.Len(t, legs, 10)
	bank, office := legs[8], legs[9]
	assert.Equal(t, "2025-01-005a", bank.EntryID)
	assert.Equal(t, 1010, bank.AccountID)
	assert.True(t, bank.Credit.Equal(dec("42.10")))
	assert.Equal(t, "toner", bank.Memo)
	assert.Equal(t, 5020, office.AccountID)
	assert.True(t, office.Debit.Equal(dec("42.10")))
	for _, leg := range []model.Leg{bank, office} {
		assert.Equal(t, "Paper Co", leg.Description)
		assert.Equal(t, "imp-1", leg.ImportID)
		assert.Equal(t, "FIT-9", leg.Reference)
		assert.Equal(t, "1043", leg.CheckNumber)
		assert.Equal(t, model.StatusImported, leg.Status)
	}

	txns, err := l.Transactions(ctx, "1010", model.DateRange{})
	require.NoError(t, err)
	assert.Len(t, txns, 4)
}

func TestLedger_RecordFallbackAccounts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "1010", model.ImportTransaction{ID: "in", Amount: dec("12.00"), DatePosted: date(2025, 1, 21), Category: "Mystery"}))
	require.NoError(t, l.Record(ctx, "1010", model.ImportTransaction{ID: "out", Amount: dec("-3.00"), DatePosted: date(2025, 1, 22), Memo: "no payee"}))

	legs, err := l.svc.ReadMonth(2025, 1)
	require.NoError(t, err)
	require.Len(t, legs, 12)
	assert.Equal(t, accounts.UncategorizedIncome, legs[9].AccountID)
	assert.True(t, legs[9].Credit.Equal(dec("12.00")))
	assert.Equal(t, accounts.UncategorizedExpense, legs[11].AccountID)
	assert.Equal(t, "no payee", legs[11].Description)
}

func TestLedger_RecordSplits(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.Record(context.Background(), "1010", model.ImportTransaction{
		ID:         "costco",
		Amount:     dec("-180.00"),
		DatePosted: date(2025, 1, 25),
		Payee:      "Costco",
		Splits: []model.Split{
			{Category: "Software", Amount: dec("-100.00"), Memo: "licenses"},
			{Category: "Office Supplies", Amount: dec("-50.00")},
			{Category: "Snacks", Amount: dec("-20.00")},
			{Category: "Office Supplies", Amount: dec("0")},
		},
	})
	require.NoError(t, err)

	legs, err := l.svc.ReadMonth(2025, 1)
	require.NoError(t, err)
	entry := legs[8:]
	require.Len(t, entry, 5)
	assert.Equal(t, 1010, entry[0].AccountID)
	assert.Equal(t, 5010, entry[1].AccountID)
	assert.Equal(t, "licenses", entry[1].Memo)
	assert.Equal(t, 5020, entry[2].AccountID)
	assert.Equal(t, accounts.UncategorizedExpense, entry[3].AccountID)
	assert.Equal(t, accounts.UncategorizedExpense, entry[4].AccountID)
	assert.Equal(t, "split remainder", entry[4].Memo)
	assert.True(t, entry[4].Debit.Equal(dec("10.00")))
}

func TestLedger_RecordTransfer(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Record(context.Background(), "1010", model.ImportTransaction{
		ID: "xfer", Amount: dec("-1000.00"), DatePosted: date(2025, 1, 20), AccountTo: "Savings",
	}))

	savings, err := l.Transactions(context.Background(), "1020", model.DateRange{})
	require.NoError(t, err)
	require.Len(t, savings, 1)
	assert.Equal(t, "1000.00", savings[0].Amount.StringFixed(2))
}

func TestLedger_RecordZero(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.Record(context.Background(), "1010", model.ImportTransaction{ID: "z", DatePosted: date(2025, 1, 20)})
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestLedger_RecordUnknownBankAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.Record(context.Background(), "1999", model.ImportTransaction{ID: "x", Amount: dec("1.00"), DatePosted: date(2025, 1, 20)})
	assert.ErrorContains(t, err, "unknown account 1999")
}
