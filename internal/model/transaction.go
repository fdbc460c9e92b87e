package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchState is the reconciliation verdict for an imported transaction.
type MatchState string

const (
	MatchNew   MatchState = "NEW"
	MatchEqual MatchState = "EQUAL"
)

// MatchReason names the signal that declared an import a duplicate.
type MatchReason string

const (
	ReasonNone       MatchReason = ""
	ReasonDate       MatchReason = "date"
	ReasonCheck      MatchReason = "check"
	ReasonExternalID MatchReason = "external_id"
)

// ImportTransaction is the normalized form every statement parser produces.
type ImportTransaction struct {
	ID          string
	Amount      decimal.Decimal // positive = inflow, negative = outflow
	DatePosted  time.Time
	DateUser    *time.Time
	CheckNumber string
	Payee       string
	Memo        string
	ExternalID  string // OFX FITID, MT940 bank reference
	Category    string
	AccountHint string
	Splits      []Split

	// OFX extras, empty for other formats.
	TransactionType string
	PayeeID         string
	SIC             string
	RefNum          string
	Currency        string
	AccountTo       string
	Investment      *Investment

	MatchState  MatchState
	MatchedID   string
	MatchReason MatchReason

	Source Record
}

// Split is one ledger category share of a single statement line.
type Split struct {
	Amount   decimal.Decimal
	Memo     string
	Category string
	Percent  string
}

// HasSplits reports whether the splits replace the top-level category.
func (t ImportTransaction) HasSplits() bool {
	return len(t.Splits) > 0
}

// MatchDate returns the user date when present, otherwise the posted date.
func (t ImportTransaction) MatchDate() time.Time {
	if t.DateUser != nil {
		return *t.DateUser
	}
	return t.DatePosted
}

// Date builds a calendar date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock and zone from t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}
