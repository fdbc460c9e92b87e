package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is what a parser returns for one input file.
type Statement struct {
	Format      string
	Encoding    string
	Version     string
	Institution Institution
	Status      Status
	Language    string
	Account     StatementAccount
	Currency    string
	Start       time.Time
	End         time.Time

	LedgerBalance *Balance
	AvailBalance  *Balance

	Transactions []ImportTransaction
	Diagnostics  []Diagnostic
}

// Institution identifies the financial institution (OFX FI aggregate).
type Institution struct {
	Org string
	FID string
}

// Status is an OFX STATUS aggregate.
type Status struct {
	Code     string
	Severity string
	Message  string
}

// StatementAccount identifies the account a statement belongs to.
type StatementAccount struct {
	BankID      string
	BranchID    string
	AccountID   string
	AccountType string
	Label       string
}

// Balance is an amount as of a date.
type Balance struct {
	Amount decimal.Decimal
	AsOf   time.Time
}

// Add normalizes rec and appends it.
func (s *Statement) Add(rec Record) error {
	t, err := Normalize(rec)
	if err != nil {
		return err
	}
	s.Transactions = append(s.Transactions, t)
	return nil
}

// Skip records a per-transaction failure. In strict mode the error is
// returned instead so the caller aborts the file.
func (s *Statement) Skip(err error, strict bool) error {
	if strict {
		return err
	}
	s.Diagnostics = append(s.Diagnostics, DiagnosticFrom(err))
	return nil
}

// Note records a diagnostic that never fails the parse.
func (s *Statement) Note(line int, kind ErrorKind, msg string) {
	s.Diagnostics = append(s.Diagnostics, Diagnostic{Line: line, Kind: kind, Message: msg})
}

// DateOrder selects how ambiguous numeric dates are read.
type DateOrder string

const (
	DateOrderAuto DateOrder = "auto"
	DateOrderUS   DateOrder = "us"
	DateOrderEU   DateOrder = "eu"
)

// ParseOptions is passed explicitly to every parse call.
type ParseOptions struct {
	// Strict makes per-transaction errors fatal.
	Strict bool
	// Encoding overrides any declared charset. A byte-order mark still wins.
	Encoding string
	// DefaultEncoding is used when the input declares nothing.
	DefaultEncoding string
	DateOrder       DateOrder
}

// LedgerTransaction is an existing ledger transaction as seen by the matcher.
type LedgerTransaction struct {
	ID          string
	Account     string
	Amount      decimal.Decimal // signed for Account
	Date        time.Time
	CheckNumber string
	ExternalID  string
}

// DateRange is an inclusive range of calendar dates. The zero value means all dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// All reports whether the range is unbounded.
func (r DateRange) All() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = DateOf(d)
	if !r.Start.IsZero() && d.Before(DateOf(r.Start)) {
		return false
	}
	if !r.End.IsZero() && d.After(DateOf(r.End)) {
		return false
	}
	return true
}
