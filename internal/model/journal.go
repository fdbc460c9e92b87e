package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus represents the lifecycle state of a journal entry.
type EntryStatus string

const (
	StatusImported   EntryStatus = "imported"
	StatusReconciled EntryStatus = "reconciled"
	StatusVoided     EntryStatus = "voided"
)

// Leg is a single row in journal.csv (one side of a double-entry).
type Leg struct {
	EntryID      string          // "YYYY-MM-NNNx" where x = a,b,c...
	Date         time.Time       //nolint:revive // plain field name is clearest
	AccountID    int             //nolint:revive
	Description  string          //nolint:revive
	Debit        decimal.Decimal // zero if credit side
	Credit       decimal.Decimal // zero if debit side
	Counterparty string
	Reference    string // external transaction id (FITID, bank reference)
	CheckNumber  string
	ImportID     string
	Status       EntryStatus
	Memo         string
}

// EntryGroup returns the base entry ID (without leg suffix).
// "2025-01-001a" -> "2025-01-001"
func (l Leg) EntryGroup() string {
	i := len(l.EntryID)
	for i > 0 && l.EntryID[i-1] >= 'a' && l.EntryID[i-1] <= 'z' {
		i--
	}
	return l.EntryID[:i]
}

// SignedAmount is the leg's effect on its account: debit minus credit.
func (l Leg) SignedAmount() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}
